package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/liweiyi88/pgbackup/jobresult"
)

type Slack struct {
	IncomingWebhook string `yaml:"incomingwebhook"`
}

type SlackMessage struct {
	Blocks []Block `json:"blocks"`
}

type Block struct {
	Type string `json:"type"`
	Text Text   `json:"text"`
}

type Text struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func newSection(text string) Block {
	return Block{
		Type: "section",
		Text: Text{
			Type: "mrkdwn",
			Text: text,
		},
	}
}

func (slack *Slack) message(report *jobresult.Report) SlackMessage {
	blocks := make([]Block, 0, len(report.Results)+1)
	blocks = append(blocks, newSection(fmt.Sprintf("*%s*", report.Title())))

	for _, result := range report.Results {
		blocks = append(blocks, newSection(result.ToSlackText()))
	}

	return SlackMessage{Blocks: blocks}
}

func (slack *Slack) Notify(ctx context.Context, report *jobresult.Report) error {
	if report == nil || (len(report.Results) == 0 && report.Error == nil) {
		return nil
	}

	data, err := json.Marshal(slack.message(report))
	if err != nil {
		return fmt.Errorf("failed to marshal slack message, err: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slack.IncomingWebhook, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack notification failed: %w", err)
	}

	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("slack notification failed: %v", string(body))
	}

	return nil
}
