package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-flashmob-registry/internal/domain/notification"
	"github.com/sanosuguru/go-flashmob-registry/internal/pkg/logger"
	"github.com/sanosuguru/go-flashmob-registry/internal/pkg/metrics"
)

// NotificationPublisher は通知を外部ブローカーへ発行するインターフェース
type NotificationPublisher interface {
	Publish(ctx context.Context, n *notification.Notification) error
}

// NotificationRelay は通知ログの未中継分を外部ブローカーへ中継するワーカー
// ログの外部オブザーバーであり、レジストリの状態機械には関与しない
// 中継は at-least-once（失敗した通知は次のティックで再送される）
type NotificationRelay struct {
	notifLog  notification.Log
	publisher NotificationPublisher
	interval  time.Duration
	batchSize int
	metrics   *metrics.Metrics
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewNotificationRelay は新しい中継ワーカーを作成する
func NewNotificationRelay(
	nl notification.Log,
	publisher NotificationPublisher,
	interval time.Duration,
	batchSize int,
	m *metrics.Metrics,
) *NotificationRelay {
	return &NotificationRelay{
		notifLog:  nl,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		metrics:   m,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start は中継ワーカーを開始する
func (r *NotificationRelay) Start(ctx context.Context) {
	logger.Info("通知中継ワーカー開始",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("通知中継ワーカー停止（コンテキストキャンセル）")
			return
		case <-r.stopCh:
			logger.Info("通知中継ワーカー停止（シグナル受信）")
			return
		case <-ticker.C:
			r.relay(ctx)
		}
	}
}

// Stop は中継ワーカーを停止する
func (r *NotificationRelay) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

// relay は未中継の通知をSeq順に発行する
// 最初の失敗でバッチを打ち切る（順序を保つため、後続は次のティックで再試行）
func (r *NotificationRelay) relay(ctx context.Context) {
	log := logger.Get()

	pending, err := r.notifLog.ListUnpublished(ctx, r.batchSize)
	if err != nil {
		log.Error("未中継通知の取得失敗", zap.Error(err))
		return
	}
	if len(pending) == 0 {
		r.updateBacklog(ctx)
		return
	}

	published := make([]int64, 0, len(pending))
	for _, n := range pending {
		if err := r.publisher.Publish(ctx, n); err != nil {
			log.Error("通知の発行失敗",
				zap.Int64("seq", n.Seq),
				zap.String("type", string(n.Type)),
				zap.Error(err),
			)
			r.countRelayed("error", 1)
			break
		}
		published = append(published, n.Seq)
	}

	if len(published) > 0 {
		if err := r.notifLog.MarkPublished(ctx, published); err != nil {
			// 発行済みだが記録できなかった分は再送される（at-least-once）
			log.Error("中継済み記録の更新失敗", zap.Error(err))
			return
		}
		r.countRelayed("success", len(published))
		log.Debug("通知を中継", zap.Int("count", len(published)))
	}

	r.updateBacklog(ctx)
}

func (r *NotificationRelay) countRelayed(status string, n int) {
	if r.metrics != nil {
		r.metrics.NotificationsRelayedTotal.WithLabelValues(status).Add(float64(n))
	}
}

func (r *NotificationRelay) updateBacklog(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	count, err := r.notifLog.CountUnpublished(ctx)
	if err != nil {
		return
	}
	r.metrics.NotificationBacklog.Set(float64(count))
}
