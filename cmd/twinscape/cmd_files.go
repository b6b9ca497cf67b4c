package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var filesContentType string

// filesCmd represents the files command
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage scene files in the storage container",
	Example: `  twinscape files list
  twinscape files get scene.json > scene.json
  twinscape files put scene.json ./scene.json
  twinscape files delete old-scene.json`,
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List files in the container",
	RunE:  runFilesList,
}

var filesGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Download a file to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesGet,
}

var filesPutCmd = &cobra.Command{
	Use:   "put [name] [path]",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(2),
	RunE:  runFilesPut,
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesDelete,
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesListCmd, filesGetCmd, filesPutCmd, filesDeleteCmd)

	filesPutCmd.Flags().StringVar(&filesContentType, "content-type", "application/json", "Content type of the uploaded file")
}

func runFilesList(cmd *cobra.Command, args []string) error {
	adapter, _, err := buildAdapter()
	if err != nil {
		return err
	}
	res := adapter.ListBlobs(context.Background())
	if err := reportErrors(res.ErrorInfo()); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "NAME\tSIZE\tLAST MODIFIED")
	for _, b := range res.Data() {
		fmt.Fprintf(w, "%s\t%d\t%s\n", b.Name, b.ContentLength, b.LastModified)
	}
	return nil
}

func runFilesGet(cmd *cobra.Command, args []string) error {
	adapter, _, err := buildAdapter()
	if err != nil {
		return err
	}
	res := adapter.GetBlob(context.Background(), args[0])
	if err := reportErrors(res.ErrorInfo()); err != nil {
		return err
	}
	_, err = os.Stdout.Write(res.Data())
	return err
}

func runFilesPut(cmd *cobra.Command, args []string) error {
	adapter, _, err := buildAdapter()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(args[1]) // #nosec G304 -- path is intentional user input
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[1], err)
	}
	res := adapter.PutBlob(context.Background(), args[0], content, filesContentType)
	if err := reportErrors(res.ErrorInfo()); err != nil {
		return err
	}
	fmt.Printf("Uploaded %s (%d bytes)\n", res.Data(), len(content))
	return nil
}

func runFilesDelete(cmd *cobra.Command, args []string) error {
	adapter, _, err := buildAdapter()
	if err != nil {
		return err
	}
	res := adapter.DeleteBlob(context.Background(), args[0])
	if err := reportErrors(res.ErrorInfo()); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", res.Data())
	return nil
}
