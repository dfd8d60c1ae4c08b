package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/jinford/tube-rag/internal/core/ask"
	"github.com/jinford/tube-rag/internal/core/session"
	"github.com/jinford/tube-rag/internal/infra/youtube"
)

// AskAction は動画の取り込みと質問応答をワンショットで実行する
// 動作確認やスクリプトからの利用を想定した同期コマンド
func AskAction(ctx context.Context, cmd *cli.Command) error {
	ac, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer ac.Close()

	videoID, err := youtube.ExtractVideoID(cmd.String("url"))
	if err != nil {
		return err
	}

	sess := &session.Session{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		VideoURL:  cmd.String("url"),
		CreatedAt: time.Now(),
	}
	if err := ac.Store.CreateSession(ctx, sess); err != nil {
		return fmt.Errorf("セッション作成に失敗: %w", err)
	}

	ac.Logger.Info("ingesting video", "videoID", videoID)
	if err := ac.Orchestrator.RunSync(ctx, sess); err != nil {
		if snap, ok := ac.Tracker.Get(sess.ID); ok {
			return fmt.Errorf("取り込みに失敗: %s (%w)", snap.Message, err)
		}
		return fmt.Errorf("取り込みに失敗: %w", err)
	}

	result, err := ac.AskService.Ask(ctx, ask.AskParams{
		SessionID: sess.ID,
		Question:  cmd.String("question"),
	})
	if err != nil {
		return fmt.Errorf("回答生成に失敗: %w", err)
	}

	fmt.Println(result.Answer)

	if len(result.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, src := range result.Sources {
			fmt.Printf("  chunk %d (t=%.0fs, score=%.3f)\n", src.Ordinal, src.StartTime, src.Score)
		}
	}
	return nil
}
