package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/compass-labs/roadsync/internal/core/domain"
	"github.com/compass-labs/roadsync/internal/core/services"
)

var roadmapCmd = &cobra.Command{
	Use:   "roadmap <snapshot.yaml>",
	Short: "Validate and print a roadmap snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoadmap,
}

func init() {
	rootCmd.AddCommand(roadmapCmd)
}

func runRoadmap(cmd *cobra.Command, args []string) error {
	roadmap, err := services.LoadRoadmapSnapshot(args[0])
	if err != nil {
		return fmt.Errorf("loading roadmap: %w", err)
	}

	cmd.Printf("Base revision: %s\n", roadmap.BaseRevision)
	cmd.Printf("Components:    %d\n", len(roadmap.Components))
	printTree(cmd, roadmap, "", 0)
	return nil
}

// printTree prints components depth-first under their parents.
func printTree(cmd *cobra.Command, roadmap *domain.RoadmapStructure, parentID string, depth int) {
	for _, c := range roadmap.Children(parentID) {
		indent := ""
		for i := 0; i < depth; i++ {
			indent += "  "
		}
		line := fmt.Sprintf("%s- %s", indent, c.ID)
		if c.Title != "" {
			line += fmt.Sprintf(" (%s)", c.Title)
		}
		if c.ContentPath != "" {
			line += fmt.Sprintf(" -> %s", c.ContentPath)
		}
		cmd.Println(line)
		printTree(cmd, roadmap, c.ID, depth+1)
	}
}
