package cmd

import (
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app = "almamatch"
)

type Config struct {
	Listen         string         `mapstructure:"listen"`
	DatabaseURL    string         `mapstructure:"database-url"`
	RedisURL       string         `mapstructure:"redis-url"`
	APITokenFile   string         `mapstructure:"api-token-file"`
	PlanCacheTTL   int            `mapstructure:"plan-cache-ttl-seconds"`
	RefreshMinutes int            `mapstructure:"refresh-minutes"`
	Suggest        *SuggestConfig `mapstructure:"suggest"`
}

type SuggestConfig struct {
	MinMatchScore int `mapstructure:"min-match-score"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "almamatch matches applicants with academic opportunity posts and serves the recommendation API",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("database-url", "DATABASE_URL"); err != nil {
		log.Fatalf("binding DATABASE_URL environment variable: %v", err)
	}
	if err := viper.BindEnv("redis-url", "REDIS_URL"); err != nil {
		log.Fatalf("binding REDIS_URL environment variable: %v", err)
	}
	if err := viper.BindEnv("api-token-file", "ALMAMATCH_API_TOKEN_FILE"); err != nil {
		log.Fatalf("binding ALMAMATCH_API_TOKEN_FILE environment variable: %v", err)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is almamatch.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// Config is needed only for the serve and source commands.
	if serveCmd.CalledAs() == "" && sourceCmd.CalledAs() == "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app + ".yaml")
	}

	// We can't proceed if the config file parsed with error.
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
