package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily は指定名のメトリクスファミリーを返す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はメトリクスから指定名のラベル値を取り出す。
func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordAuthOperation_LabelsByResult は認証操作が結果ラベル付きで記録されることを検証する。
func TestRecordAuthOperation_LabelsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthOperation("login", nil)
	c.RecordAuthOperation("login", nil)
	c.RecordAuthOperation("login", errors.New("invalid credential"))

	mf := findMetricFamily(t, reg, "taskbid_auth_operations_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		if labelValue(m, "op") != "login" {
			t.Errorf("op label = %q, want login", labelValue(m, "op"))
		}
		val := m.GetCounter().GetValue()
		switch labelValue(m, "result") {
		case "success":
			if val != 2 {
				t.Errorf("auth_operations_total{result=success} = %v, want 2", val)
			}
		case "failure":
			if val != 1 {
				t.Errorf("auth_operations_total{result=failure} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected result label: %s", labelValue(m, "result"))
		}
	}
}

// TestRecordBidPlacement_IncrementsCounterWithLabel は入札結果カウンタがラベル付きで増加することを検証する。
func TestRecordBidPlacement_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBidPlacement(BidResultPlaced)
	c.RecordBidPlacement(BidResultDuplicate)
	c.RecordBidPlacement(BidResultDuplicate)

	mf := findMetricFamily(t, reg, "taskbid_bid_placements_total")
	for _, m := range mf.GetMetric() {
		val := m.GetCounter().GetValue()
		switch labelValue(m, "result") {
		case BidResultPlaced:
			if val != 1 {
				t.Errorf("bid_placements_total{result=placed} = %v, want 1", val)
			}
		case BidResultDuplicate:
			if val != 2 {
				t.Errorf("bid_placements_total{result=duplicate} = %v, want 2", val)
			}
		default:
			t.Errorf("unexpected label value: %s", labelValue(m, "result"))
		}
	}
}

// TestSetCachedBidCount_SetsGauge はキャッシュ件数ゲージが最後の値を保持することを検証する。
func TestSetCachedBidCount_SetsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.SetCachedBidCount(5)
	c.SetCachedBidCount(0)

	mf := findMetricFamily(t, reg, "taskbid_cached_bid_count")
	if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Errorf("cached_bid_count = %v, want 0", got)
	}
}

// TestRecordSummaryRefresh_CountsFailures は再取得失敗が記録されることを検証する。
func TestRecordSummaryRefresh_CountsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSummaryRefresh(false)

	mf := findMetricFamily(t, reg, "taskbid_bid_summary_refresh_total")
	m := mf.GetMetric()[0]
	if labelValue(m, "result") != "failure" {
		t.Errorf("result label = %q, want failure", labelValue(m, "result"))
	}
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("bid_summary_refresh_total = %v, want 1", m.GetCounter().GetValue())
	}
}

// TestRecordAPIRequest_ObservesHistogram はAPIレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordAPIRequest_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAPIRequest("bids.create", 201, 100*time.Millisecond)
	c.RecordAPIRequest("bids.create", 409, 2*time.Second)

	mf := findMetricFamily(t, reg, "taskbid_api_latency_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}

	requests := findMetricFamily(t, reg, "taskbid_api_requests_total")
	if len(requests.GetMetric()) != 2 {
		t.Errorf("expected 2 status_code label combinations, got %d", len(requests.GetMetric()))
	}
}

// TestNop_DoesNotPanic はNopの全メソッドが安全に呼べることを検証する。
func TestNop_DoesNotPanic(t *testing.T) {
	var r Recorder = Nop{}
	r.RecordAuthOperation("login", nil)
	r.RecordSessionTransition("authenticated")
	r.RecordBidPlacement(BidResultFailed)
	r.RecordSummaryRefresh(true)
	r.SetCachedBidCount(1)
	r.RecordAPIRequest("tasks.list", 200, time.Millisecond)
}
