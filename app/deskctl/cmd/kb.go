package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yoockh/helpdesk/internal/models"
)

var (
	kbFolder   string
	kbCategory string
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base (admin)",
}

func printTree(w io.Writer, nodes []*models.KBNode, depth int) {
	for _, n := range nodes {
		indent := strings.Repeat("  ", depth)
		if n.Type == models.NodeFolder {
			fmt.Fprintf(w, "%s%s/  [%s]\n", indent, n.Name, n.ID)
		} else {
			fmt.Fprintf(w, "%s%s  [%s] %s, %d bytes, %d chunks\n", indent, n.Name, n.ID, n.Status, n.Size, n.Chunks)
		}
		printTree(w, n.Children, depth+1)
	}
}

var kbTreeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the folder and file tree",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		tree, err := rt.backend.Documents.GetKnowledgeBase(cmd.Context())
		if err != nil {
			return err
		}
		printTree(os.Stdout, tree, 0)
		return nil
	},
}

var kbMkdirCmd = &cobra.Command{
	Use:   "mkdir <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		n, err := rt.backend.Documents.CreateFolder(cmd.Context(), kbFolder, args[0])
		if err != nil {
			return err
		}
		fmt.Println(n.ID)
		return nil
	},
}

var kbUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := rt.backend.Documents.Upload(cmd.Context(), kbFolder, filepath.Base(args[0]), kbCategory, f)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", n.ID, n.Status)
		return nil
	},
}

var kbStatusCmd = &cobra.Command{
	Use:   "status <document-id>",
	Short: "Show a document's indexing status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		st, err := rt.backend.Documents.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d chunks)\n", st.Status, st.Chunks)
		return nil
	},
}

var kbRenameCmd = &cobra.Command{
	Use:   "rename <node-id> <new-name>",
	Short: "Rename a folder or document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		return rt.backend.Documents.Rename(cmd.Context(), args[0], args[1])
	},
}

var kbRmCmd = &cobra.Command{
	Use:   "rm <node-id>",
	Short: "Delete a folder (recursively) or document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		return rt.backend.Documents.Delete(cmd.Context(), args[0])
	},
}

var kbURLCmd = &cobra.Command{
	Use:   "url <document-id>",
	Short: "Print a temporary download link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := adminView(cmd); err != nil {
			return err
		}
		u, err := rt.backend.Documents.DownloadURL(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(u)
		return nil
	},
}

func init() {
	kbMkdirCmd.Flags().StringVar(&kbFolder, "parent", "", "parent folder id (default is the root)")
	kbUploadCmd.Flags().StringVar(&kbFolder, "folder", "", "target folder id (default is the root)")
	kbUploadCmd.Flags().StringVar(&kbCategory, "category", "", "document category")
	kbCmd.AddCommand(kbTreeCmd, kbMkdirCmd, kbUploadCmd, kbStatusCmd, kbRenameCmd, kbRmCmd, kbURLCmd)
	rootCmd.AddCommand(kbCmd)
}
