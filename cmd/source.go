package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/almamatch/almamatch/internal/logger"
	"github.com/almamatch/almamatch/internal/store"
	"github.com/almamatch/almamatch/internal/suggest"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	PromptBack       = "back"
	PromptExit       = "exit"
	PromptDumpToFile = "Dump suggestions to file"

	promptTitleLimit = 60
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Interactively source best-fit applicants for a published post",
	Run: func(cmd *cobra.Command, _ []string) {
		source(cmd)
	},
}

func init() {
	rootCmd.AddCommand(sourceCmd)

	sourceCmd.Flags().IntP("min-score", "m", suggest.DefaultMinMatchScore, "minimum match percentage for suggested applicants")
}

// source is the operator-side sourcing loop: pick a post, review the ranked
// applicants, optionally dump them to a file.
func source(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil || config.DatabaseURL == "" {
		logger.Fatal("database url is required",
			zap.String("hint", "set DATABASE_URL environment variable or the 'database-url' key in the configuration file"),
		)
	}

	minScore, err := cmd.Flags().GetInt("min-score")
	if err != nil {
		logger.Fatal("reading min-score flag", zap.Error(err))
	}
	// The flag wins over the configuration file.
	if !cmd.Flags().Changed("min-score") && config.Suggest != nil {
		minScore = config.Suggest.MinMatchScore
	}

	pool, err := store.NewPostgresPool(ctx, config.DatabaseURL)
	if err != nil {
		logger.Fatal("connecting to postgres", zap.Error(err))
	}
	defer pool.Close()

	st := store.New(pool, nil, logger)
	engine := suggest.NewEngine(st, logger)

	posts, err := st.ListCandidatePosts(ctx)
	if err != nil {
		logger.Fatal("listing published posts", zap.Error(err))
	}
	if posts.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no published posts found"))
		return
	}

	for {
		items := make([]string, 0, posts.Len()+1)
		for _, post := range posts.Items {
			label := fmt.Sprintf("%s %s / %s / %s",
				post.ID, promptTitle(post.Title), post.Kind, post.DegreeLevel,
			)
			items = append(items, label)
		}

		postPrompt := promptui.Select{
			Label: "Choose a post and press ENTER",
			Items: append(items, PromptExit),
		}

		_, selected, err := postPrompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		if selected == PromptExit {
			return
		}

		postID, err := uuid.Parse(strings.Split(selected, " ")[0])
		if err != nil {
			logger.Fatal("parsing selected post id", zap.Error(err))
		}

		ranked, err := engine.Suggest(ctx, postID, minScore)
		if err != nil {
			logger.Fatal("computing suggestions", zap.Error(err))
		}

		if len(ranked) == 0 {
			logger.Info("no applicants above the threshold",
				zap.String("post_id", postID.String()),
				zap.Int("min_score", minScore),
			)
			continue
		}

		report := make([]map[string]string, 0, len(ranked))
		for _, r := range ranked {
			report = append(report, map[string]string{
				"applicant_id": r.Applicant.ID.String(),
				"name":         r.Applicant.Name,
				"degree_level": string(r.Applicant.DegreeLevel),
				"discipline":   r.Applicant.DisciplineID,
				"gpa":          fmt.Sprintf("%.2f", r.Applicant.GPA),
				"score":        r.Score,
			})
		}

		pretty, _ := json.MarshalIndent(report, "", "  ")
		logger.Info(string(pretty), zap.Int("applicants_count", len(ranked)))

		if err := handleSuggestions(logger, postID, report); err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func handleSuggestions(logger *zap.Logger, postID uuid.UUID, report []map[string]string) error {
	actionPrompt := promptui.Select{
		Label: "Proceed?",
		Items: []string{PromptDumpToFile, PromptBack},
	}

	_, action, err := actionPrompt.Run()
	if err != nil {
		return err
	}

	switch action {
	case PromptBack:
		return nil
	case PromptDumpToFile:
		filename, err := dumpSuggestions(postID, report)
		if err != nil {
			return fmt.Errorf("dump suggestions to file: %w", err)
		}
		logger.Info("dumping suggestions to file", zap.String("filename", filename))
		return nil
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func dumpSuggestions(postID uuid.UUID, report []map[string]string) (string, error) {
	file, err := os.CreateTemp("", "suggestions_"+postID.String()+"_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func promptTitle(title string) string {
	return logger.TruncateForLog(title, promptTitleLimit)
}
