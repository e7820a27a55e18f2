package admin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/tutorcore/internal/domain"
	"github.com/cloo-solutions/tutorcore/internal/service"
	"github.com/cloo-solutions/tutorcore/internal/tenant"
	"github.com/spf13/cobra"
)

func MaterialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "material",
		Short: "Register and process course materials",
	}

	cmd.AddCommand(materialRegisterCmd())
	cmd.AddCommand(materialProcessCmd())
	cmd.AddCommand(materialChunksCmd())
	cmd.AddCommand(materialStatsCmd())

	return cmd
}

func materialRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a material and enqueue its embedding job",
		Long:  "Register a material from a local text file, inline text or an object storage key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, err := principalFromFlags(cmd)
			if err != nil {
				return err
			}

			in := service.RegisterMaterialInput{}
			in.CourseID, _ = cmd.Flags().GetString("course")
			in.TopicID, _ = cmd.Flags().GetString("topic")
			in.Title, _ = cmd.Flags().GetString("title")
			in.StorageKey, _ = cmd.Flags().GetString("storage-key")
			in.Text, _ = cmd.Flags().GetString("text")
			in.FileType, _ = cmd.Flags().GetString("file-type")
			in.Upload, _ = cmd.Flags().GetBool("upload")

			if path, _ := cmd.Flags().GetString("file"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", path, err)
				}
				in.Text = string(data)
				in.FileSize = int64(len(data))
				if in.Title == "" {
					in.Title = filepath.Base(path)
				}
				if in.FileType == "" {
					in.FileType = strings.TrimPrefix(filepath.Ext(path), ".")
				}
			}

			return withRuntime(ctx, runtimeOptions{}, func(rt *runtime) error {
				m, err := rt.material.Register(ctx, p, in)
				if err != nil {
					return err
				}
				return printOutput(cmd, m, func() {
					fmt.Printf("Material registered: %s (%s), status %s\n", m.Title, m.ID, m.Status)
				})
			})
		},
	}

	addPrincipalFlags(cmd)
	addOutputFlag(cmd)
	cmd.Flags().String("course", "", "Course ID (required)")
	cmd.Flags().String("topic", "", "Topic ID")
	cmd.Flags().String("title", "", "Material title")
	cmd.Flags().String("file", "", "Local text file to register")
	cmd.Flags().String("text", "", "Inline material text")
	cmd.Flags().String("storage-key", "", "Object storage key holding the text")
	cmd.Flags().String("file-type", "", "File type, e.g. md or txt")
	cmd.Flags().Bool("upload", false, "Store the text in object storage and keep only its key")
	_ = cmd.MarkFlagRequired("course")

	return cmd
}

func materialProcessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <material-id>",
		Short: "Chunk and embed a material now",
		Long:  "Run the embedding pipeline for one material in the foreground, as the worker would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			orgID, _ := cmd.Flags().GetString("org")

			return withRuntime(ctx, runtimeOptions{}, func(rt *runtime) error {
				if rt.embedding == nil {
					return errNoProvider
				}
				if err := rt.embedding.ProcessMaterial(ctx, orgID, args[0]); err != nil {
					return err
				}
				m, err := rt.material.Get(ctx, tenant.ServicePrincipal(orgID), args[0])
				if err != nil {
					return err
				}
				return printOutput(cmd, m, func() {
					fmt.Printf("Material %s: status %s\n", m.ID, m.Status)
				})
			})
		},
	}

	cmd.Flags().String("org", "", "Organization ID (required)")
	_ = cmd.MarkFlagRequired("org")
	addOutputFlag(cmd)

	return cmd
}

func materialChunksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks <material-id>",
		Short: "List a material's chunks in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			p, err := principalFromFlags(cmd)
			if err != nil {
				return err
			}

			return withRuntime(ctx, runtimeOptions{}, func(rt *runtime) error {
				chunks, err := rt.material.Chunks(ctx, p, args[0])
				if err != nil {
					return err
				}
				return printOutput(cmd, chunks, func() {
					for _, c := range chunks {
						embedded := "pending"
						if c.HasEmbedding() {
							embedded = "embedded"
						}
						fmt.Printf("  #%d %s (%d chars, %s)\n", c.Ordinal, c.ID, len([]rune(c.Content)), embedded)
					}
				})
			})
		},
	}

	addPrincipalFlags(cmd)
	addOutputFlag(cmd)

	return cmd
}

func materialStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show embedding pipeline counts",
		Long:  "Show material counts by status and chunks missing embeddings, for one organization or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			orgID, _ := cmd.Flags().GetString("org")

			return withRuntime(ctx, runtimeOptions{}, func(rt *runtime) error {
				orgIDs := []string{orgID}
				if orgID == "" {
					ids, err := rt.orgs.ListIDs(ctx)
					if err != nil {
						return err
					}
					orgIDs = ids
				}

				all := make(map[string]*domain.MaterialStats, len(orgIDs))
				for _, id := range orgIDs {
					stats, err := rt.material.Stats(ctx, tenant.ServicePrincipal(id))
					if err != nil {
						return fmt.Errorf("org %s: %w", id, err)
					}
					all[id] = stats
				}
				return printOutput(cmd, all, func() {
					for _, id := range orgIDs {
						st := all[id]
						fmt.Printf("%s:\n", id)
						for _, status := range []domain.MaterialStatus{
							domain.MaterialStatusUnprocessed,
							domain.MaterialStatusChunked,
							domain.MaterialStatusEmbedded,
							domain.MaterialStatusFailed,
						} {
							fmt.Printf("  %-12s %d\n", status, st.ByStatus[status])
						}
						fmt.Printf("  chunks       %d (%d missing embeddings)\n", st.TotalChunks, st.ChunksMissingVector)
					}
				})
			})
		},
	}

	cmd.Flags().String("org", "", "Organization ID (default: all organizations)")
	addOutputFlag(cmd)

	return cmd
}
