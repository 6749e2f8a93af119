package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(revokeCmd)

	submitCmd.Flags().String("config", "", "inline JSON transcription config")
}

var submitCmd = &cobra.Command{
	Use:   "submit <audio-file>",
	Short: "Submit an audio file for transcription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgJSON, _ := cmd.Flags().GetString("config")
		jobID, err := submitFile(GetConfig().ServerURL, args[0], cfgJSON)
		if err != nil {
			return err
		}
		fmt.Println(jobID)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Fetch a job's current status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := getJSON(GetConfig().ServerURL + "/job/" + args[0])
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	},
}

var resultCmd = &cobra.Command{
	Use:   "result <result-id>",
	Short: "Fetch a finished transcription result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		body, err := getResult(GetConfig().ServerURL, args[0], format)
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <job-id>",
	Short: "Cancel a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequest(http.MethodGet, GetConfig().ServerURL+"/revoke/"+args[0], nil)
		if err != nil {
			return err
		}
		resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= http.StatusBadRequest {
			return fmt.Errorf("server returned %s: %s", resp.Status, body)
		}
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	resultCmd.Flags().String("format", "json", "output format: json, text, srt, or vtt")
}

func submitFile(serverURL, path, cfgJSON string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		defer mw.Close()
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		if cfgJSON != "" {
			if err := mw.WriteField("config", cfgJSON); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
	}()

	req, err := http.NewRequest(http.MethodPost, serverURL+"/transcribe", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := (&http.Client{Timeout: 2 * time.Minute}).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("server returned %s: %s", resp.Status, body)
	}

	var decoded struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return decoded.JobID, nil
}

func getJSON(url string) ([]byte, error) {
	resp, err := (&http.Client{Timeout: 10 * time.Second}).Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
	return body, nil
}

func getResult(serverURL, resultID, format string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, serverURL+"/results/"+resultID, nil)
	if err != nil {
		return nil, err
	}
	switch format {
	case "srt":
		req.Header.Set("Accept", "text/srt")
	case "vtt":
		req.Header.Set("Accept", "text/vtt")
	case "text":
		req.Header.Set("Accept", "text/plain")
	default:
		req.Header.Set("Accept", "application/json")
	}

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
	return body, nil
}
