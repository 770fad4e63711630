// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// upload.go - File upload and audio transcription commands.
//
// Commands:
//   upload <file>        Upload a file to backend storage
//   transcribe <file>    Transcribe an audio file to text
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// maxUploadBytes caps local reads before they hit the gateway's own limit.
const maxUploadBytes = 10 << 20

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file to backend storage",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpload,
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe an audio file to text",
	Args:  cobra.ExactArgs(1),
	RunE:  runTranscribe,
}

// readUploadFile reads and size-checks a local file for upload.
func readUploadFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > maxUploadBytes {
		return nil, fmt.Errorf("%s is %d bytes, exceeds the %d byte upload limit", path, info.Size(), maxUploadBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return data, nil
}

func runUpload(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	data, err := readUploadFile(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	obj, err := app.Gateway.UploadFile(ctx, filepath.Base(args[0]), data)
	if err != nil {
		return err
	}

	fmt.Printf("Uploaded %s (%d bytes)\n", filepath.Base(args[0]), len(data))
	fmt.Printf("  storage id: %s\n", obj.StorageID)
	if obj.URL != "" {
		fmt.Printf("  url:        %s\n", obj.URL)
	}
	return nil
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	app, err := newApp()
	if err != nil {
		return err
	}
	defer app.Close()

	data, err := readUploadFile(args[0])
	if err != nil {
		return err
	}

	mime := audioMIME(args[0])
	if mime == "" {
		return fmt.Errorf("unsupported audio format %q, expected wav, mp3, ogg, m4a, flac, or webm", filepath.Ext(args[0]))
	}

	ctx, cancel := commandContext()
	defer cancel()

	result, err := app.Gateway.TranscribeAudio(ctx, filepath.Base(args[0]), mime, data)
	if err != nil {
		return err
	}

	fmt.Println(result.Text)
	return nil
}

// audioMIME maps an audio file extension to its MIME type, or "" when the
// extension is not a supported audio format.
func audioMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".webm":
		return "audio/webm"
	default:
		return ""
	}
}
