package internal

import (
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   網路分區或客戶端崩潰時，傳輸層的 close/error 不一定會觸發，
//   如何偵測並回收這種「靜默死亡」的連接？
//
// 設計方案：兩階段定期掃描
//   1. 廉價的過期檢查：距離最近活性信號超過硬超時（45 秒）直接剔除，
//     不等探測往返（這個連接無論如何都已經死了）
//   2. 探測／確認往返：其餘連接標記為待確認並發送 Ping，寬限期
//     （5 秒，短於掃描間隔）內收到 Pong 或應用層心跳即確認存活，
//     否則在第二個檢查點剔除
//
// 這樣最壞偵測延遲被限制在約一個掃描間隔加寬限期（35 秒），同時
// 不會只因為單次探測回應偏慢就誤殺一個平常心跳正常的連接。
//
// 兩個檢查點放在同一個循環任務裡而非巢狀計時器，關閉時取消只需
// 一個操作（stopCh）。

// 預設時間參數
const (
	DefaultSweepInterval    = 30 * time.Second // 掃描間隔
	DefaultHeartbeatTimeout = 45 * time.Second // 硬超時
	DefaultGracePeriod      = 5 * time.Second  // 探測寬限期
)

// Monitor 連接健康監視器
type Monitor struct {
	relay    *Relay
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
	grace    time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor 建立健康監視器。interval、timeout、grace 傳 0 使用預設值
func NewMonitor(relay *Relay, logger *slog.Logger, interval, timeout, grace time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	return &Monitor{
		relay:    relay,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
		grace:    grace,
		stopCh:   make(chan struct{}),
	}
}

// Start 啟動掃描循環
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop 停止掃描循環，包含進行中的寬限期等待
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("健康監視器已停止")
}

// run 掃描循環
func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// Sweep 執行一次完整掃描（公開供測試使用）
func (m *Monitor) Sweep() {
	m.sweep()
}

// sweep 一次掃描：過期檢查＋探測，寬限期後回收未確認的連接
func (m *Monitor) sweep() {
	probed, evicted := m.relay.evictStale(m.timeout)
	if evicted > 0 {
		m.logger.Info("清理掃描：剔除過期連接", "evicted", evicted)
	}
	if probed == 0 {
		return
	}

	// 等待寬限期，期間收到關閉信號則放棄第二階段
	select {
	case <-time.After(m.grace):
	case <-m.stopCh:
		return
	}

	if reaped := m.relay.reapUnconfirmed(); reaped > 0 {
		m.logger.Info("清理掃描：剔除未回應連接", "evicted", reaped)
	}
}
