package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docchat/pkg/chat"
)

var uploadName string

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF and print its shareable session path",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

func init() {
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "session display name (defaults to the file name)")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	if uploadName != "" {
		name = uploadName
		if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
			name += ".pdf"
		}
	}

	machine := chat.NewStateMachine("/")
	uploader := chat.NewUploader(chat.NewAPI(gatewayURL))
	sessionPath, err := uploader.Upload(cmd.Context(), chat.File{
		Name:        name,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Reader:      f,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	machine.UploadSucceeded(sessionPath)

	if machine.Phase() == chat.PhaseShare {
		cmd.Printf("Session created. Share this link:\n\n  %s%s\n\n", strings.TrimRight(gatewayURL, "/"), machine.ActivePath())
		cmd.Printf("Start chatting with:\n\n  docchat chat %s\n", machine.ActivePath())
	}
	return nil
}
