package main

import (
	"context"
	"flag"
	"log"
	"time"

	"commentary/worker/internal/config"
	"commentary/worker/internal/database"
	"commentary/worker/internal/queue"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Republishes render messages for tasks that stalled mid-pipeline, e.g.
// after a worker crash left them RENDERING with no consumer working on them.
func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	limit := flag.Int("limit", 100, "maximum number of stalled tasks to requeue")
	staleAfter := flag.Duration("stale-after", 2*time.Hour, "re-queue tasks not updated for this long")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}
	defer db.Close()

	conn, err := queue.NewConnection(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()

	pub := queue.NewPublisher(conn)
	ctx := context.Background()

	rows, err := db.QueryContext(ctx, `
		SELECT id, script_key, source_video_key, bgm_key, voice
		FROM tasks
		WHERE status = 'RENDERING' AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, time.Now().Add(-*staleAfter), *limit)
	if err != nil {
		log.Fatalf("failed to query stalled tasks: %v", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var taskID uuid.UUID
		var scriptKey, sourceKey string
		var bgmKey, voice *string
		if err := rows.Scan(&taskID, &scriptKey, &sourceKey, &bgmKey, &voice); err != nil {
			continue
		}

		payload := map[string]interface{}{
			"script_key":       scriptKey,
			"source_video_key": sourceKey,
			"output_video_key": "tasks/" + taskID.String() + "/combined.mp4",
		}
		if bgmKey != nil && *bgmKey != "" {
			payload["bgm_key"] = *bgmKey
		}
		if voice != nil && *voice != "" {
			payload["voice"] = *voice
		}

		msg := map[string]interface{}{
			"task_id":    taskID.String(),
			"step":       "render",
			"attempt":    1,
			"trace_id":   uuid.New().String(),
			"created_at": time.Now().Format(time.RFC3339),
			"payload":    payload,
		}

		if err := pub.Publish(ctx, queue.RouteRender, msg); err != nil {
			logger.Error("failed to requeue render task", zap.String("task_id", taskID.String()), zap.Error(err))
			continue
		}
		logger.Info("requeued render task", zap.String("task_id", taskID.String()))
		count++
	}

	log.Printf("requeued %d render tasks\n", count)
}
