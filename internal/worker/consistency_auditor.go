package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-trip-seat-reservation/internal/application"
	"github.com/sanosuguru/go-trip-seat-reservation/internal/pkg/logger"
)

// InventoryAuditor は全ツアーの在庫整合性を検査するインターフェース
type InventoryAuditor interface {
	AuditAll(ctx context.Context) ([]application.AuditReport, error)
}

// ConsistencyAuditor は定期的に在庫の整合性を監査するワーカー
// 不整合の修復は行わず、ログとメトリクスで検出結果を知らせる
type ConsistencyAuditor struct {
	auditor  InventoryAuditor
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewConsistencyAuditor は新しい監査ワーカーを作成
func NewConsistencyAuditor(auditor InventoryAuditor, interval time.Duration) *ConsistencyAuditor {
	return &ConsistencyAuditor{
		auditor:  auditor,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start は監査を開始（ctx のキャンセルか Stop で終了する）
func (a *ConsistencyAuditor) Start(ctx context.Context) {
	logger.Info("在庫整合性監査を開始", zap.Duration("interval", a.interval))

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	defer close(a.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("在庫整合性監査を停止（コンテキストキャンセル）")
			return
		case <-a.stopCh:
			logger.Info("在庫整合性監査を停止（シグナル受信）")
			return
		case <-ticker.C:
			a.audit(ctx)
		}
	}
}

// Stop は監査を停止し、実行中の監査が終わるまで待つ
func (a *ConsistencyAuditor) Stop() {
	close(a.stopCh)
	<-a.doneCh
}

func (a *ConsistencyAuditor) audit(ctx context.Context) {
	log := logger.Get()
	start := time.Now()

	reports, err := a.auditor.AuditAll(ctx)
	if err != nil {
		log.Error("在庫整合性監査に失敗", zap.Int("audited", len(reports)), zap.Error(err))
		return
	}

	inconsistent := 0
	for _, r := range reports {
		if !r.Consistent() {
			inconsistent++
		}
	}

	fields := []zap.Field{
		zap.Int("trips", len(reports)),
		zap.Int("inconsistent", inconsistent),
		zap.Duration("elapsed", time.Since(start)),
	}
	if inconsistent > 0 {
		log.Warn("在庫の不整合があるツアーを検出", fields...)
		return
	}
	log.Debug("在庫整合性監査完了", fields...)
}
