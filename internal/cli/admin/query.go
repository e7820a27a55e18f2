package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"github.com/spf13/cobra"
)

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the in-memory similarity index",
	}
	cmd.AddCommand(indexTrainStatsCmd())
	return cmd
}

func indexTrainStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train-stats",
		Short: "Load every embedding, train the IVF clusters and print index stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			opts := runtimeOptions{LoadIndex: true, MemoryIndex: true}

			return withRuntime(ctx, opts, func(rt *runtime) error {
				rt.index.Train()
				stats := rt.index.Stats()
				return printOutput(cmd, stats, func() {
					fmt.Printf("vectors:      %d\n", stats.Vectors)
					fmt.Printf("trained:      %t\n", stats.Trained)
					fmt.Printf("lists:        %d\n", stats.Lists)
					fmt.Printf("probes:       %d\n", stats.Probes)
					fmt.Printf("trained size: %d\n", stats.TrainedSize)
				})
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func SearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve course content for a query",
		Long:  "Embed the query and return the best matching chunks in scope, or the best chunk per material with --related",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, err := principalFromFlags(cmd)
			if err != nil {
				return err
			}
			query := strings.Join(args, " ")
			courseID, _ := cmd.Flags().GetString("course")
			limit, _ := cmd.Flags().GetInt("max")
			related, _ := cmd.Flags().GetBool("related")
			modeFlag, _ := cmd.Flags().GetString("mode")
			mode, err := domain.ParseSearchMode(modeFlag)
			if err != nil {
				return err
			}

			opts := runtimeOptions{LoadIndex: true, SearchMode: mode}
			scope := tenant.CourseScope(p.OrgID, courseID)

			return withRuntime(ctx, opts, func(rt *runtime) error {
				if rt.retrieval == nil {
					return errNoProvider
				}
				if limit <= 0 {
					limit = rt.cfg.SearchMaxResults
				}

				if related {
					matches, err := rt.retrieval.RelatedMaterials(ctx, p, query, scope, limit)
					if err != nil {
						return err
					}
					return printOutput(cmd, matches, func() {
						for _, m := range matches {
							fmt.Printf("  %.4f  material %s (chunk #%d)\n", m.Similarity, m.MaterialID, m.Ordinal)
						}
					})
				}

				res, err := rt.retrieval.AnswerWithContext(ctx, p, query, scope, limit)
				if err != nil {
					return err
				}
				return printOutput(cmd, res, func() {
					if res.UsedFallback {
						fmt.Println("No course content matched; answer without context.")
						return
					}
					for i, c := range res.Chunks {
						fmt.Printf("  %.4f  %s #%d: %s\n", res.Matches[i].Similarity, c.MaterialID, c.Ordinal, preview(c.Content, 80))
					}
				})
			})
		},
	}

	addPrincipalFlags(cmd)
	addOutputFlag(cmd)
	cmd.Flags().String("course", "", "Restrict to one course")
	cmd.Flags().IntP("max", "n", 0, "Maximum results (default: TUTORCORE_SEARCH_MAX_RESULTS)")
	cmd.Flags().Bool("related", false, "Return the best chunk per material")
	cmd.Flags().String("mode", string(domain.SearchModeApproximate), "Search mode (approximate, exact or hybrid)")

	return cmd
}

func ReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Spaced-repetition review",
	}
	cmd.AddCommand(reviewNextCmd())
	return cmd
}

func reviewNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next questions a student should review",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, err := principalFromFlags(cmd)
			if err != nil {
				return err
			}
			student, _ := cmd.Flags().GetString("student")
			if student == "" {
				student = p.UserID
			}
			courseID, _ := cmd.Flags().GetString("course")
			count, _ := cmd.Flags().GetInt("count")

			return withRuntime(ctx, runtimeOptions{}, func(rt *runtime) error {
				questions, err := rt.review.NextQuestions(ctx, p, student, courseID, count)
				if err != nil {
					return err
				}
				return printOutput(cmd, questions, func() {
					if len(questions) == 0 {
						fmt.Println("Nothing to review")
						return
					}
					for i, q := range questions {
						fmt.Printf("%d. %s\n", i+1, preview(q.Prompt, 100))
					}
				})
			})
		},
	}

	addPrincipalFlags(cmd)
	addOutputFlag(cmd)
	cmd.Flags().String("student", "", "Student user ID (default: --user)")
	cmd.Flags().String("course", "", "Course ID (required)")
	cmd.Flags().IntP("count", "n", 10, "Number of questions")
	_ = cmd.MarkFlagRequired("course")

	return cmd
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
