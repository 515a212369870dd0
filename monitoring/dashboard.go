package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/vpnmerger/aggregator/sourcemanager"
)

// Dashboard provides rich visualization-ready data for monitoring dashboards:
// summaries, timelines, source rankings, heatmaps, period comparisons, and
// metric export for external scraping.
//
// Design Philosophy:
// - Pre-computed aggregations for fast rendering
// - Time-series data optimized for charting libraries (Recharts, Chart.js)
// - Drill-down capabilities for detailed analysis
//
// Performance:
// - Query response: <10ms for dashboard data
type Dashboard struct {
	aggregator *Aggregator
	collector  *MetricsCollector
	alertMgr   *AlertManager
	detector   *AnomalyDetector
}

// NewDashboard creates a new dashboard instance.
func NewDashboard(aggregator *Aggregator, collector *MetricsCollector, alertMgr *AlertManager) *Dashboard {
	detector := aggregator.detector // Get detector from aggregator

	return &Dashboard{
		aggregator: aggregator,
		collector:  collector,
		alertMgr:   alertMgr,
		detector:   detector,
	}
}

// Request and response types for dashboard endpoints

type GetOverviewRequest struct {
	TimeRange time.Duration `json:"time_range"` // e.g., 1h, 24h, 7d
}

type GetOverviewResponse struct {
	Summary         SummaryStats    `json:"summary"`
	Timeline        []TimelinePoint `json:"timeline"`
	TopSources      []SourceStat    `json:"top_sources"`
	SystemHealth    SystemHealth    `json:"system_health"`
	RecentAlerts    []Alert         `json:"recent_alerts"`
	RecentAnomalies []Anomaly       `json:"recent_anomalies"`
}

type SummaryStats struct {
	TotalRequests int64   `json:"total_requests"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatency    float64 `json:"avg_latency_ms"`
	P95Latency    float64 `json:"p95_latency_ms"`
	ErrorRate     float64 `json:"error_rate"`
	QPS           float64 `json:"qps"`
	TrendSuccessRate string `json:"trend_success_rate"` // "up", "down", "stable"
	TrendLatency     string `json:"trend_latency"`      // "up", "down", "stable"
	TrendQPS         string `json:"trend_qps"`          // "up", "down", "stable"
}

type TimelinePoint struct {
	Timestamp  time.Time `json:"timestamp"`
	Requests   int64     `json:"requests"`
	SuccessRate float64  `json:"success_rate"`
	AvgLatency float64   `json:"avg_latency_ms"`
	P50Latency float64   `json:"p50_latency_ms"`
	P95Latency float64   `json:"p95_latency_ms"`
	P99Latency float64   `json:"p99_latency_ms"`
	ErrorRate  float64   `json:"error_rate"`
	QPS        float64   `json:"qps"`
}

// SourceStat ranks a registered source by reputation for the overview's
// "top sources" panel, sourced live from sourcemanager rather than any
// per-request tracking this service doesn't keep.
type SourceStat struct {
	URL         string  `json:"url"`
	Tier        string  `json:"tier"`
	Reputation  float64 `json:"reputation"`
	SuccessRate float64 `json:"success_rate"`
}

type SystemHealth struct {
	Status          string        `json:"status"` // "healthy", "degraded", "critical"
	Score           float64       `json:"score"`  // 0-100
	Issues          []HealthIssue `json:"issues"`
	Recommendations []string      `json:"recommendations"`
}

type HealthIssue struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Impact   string `json:"impact"`
}

type GetLatencyDistributionRequest struct {
	Window time.Duration `json:"window"`
}

type GetLatencyDistributionResponse struct {
	Buckets []LatencyBucket `json:"buckets"`
	Stats   LatencyStats    `json:"stats"`
}

type LatencyBucket struct {
	MinMs   float64 `json:"min_ms"`
	MaxMs   float64 `json:"max_ms"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

type GetHeatmapRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Metric    string    `json:"metric"` // "success_rate", "latency", "qps", "error_rate"
}

type GetHeatmapResponse struct {
	Data       [][]HeatmapCell `json:"data"`
	XLabels    []string        `json:"x_labels"` // Time labels
	YLabels    []string        `json:"y_labels"` // Metric range labels
	ColorScale ColorScale      `json:"color_scale"`
}

type HeatmapCell struct {
	Value   float64 `json:"value"`
	Color   string  `json:"color"`
	Tooltip string  `json:"tooltip"`
}

type ColorScale struct {
	Min    float64  `json:"min"`
	Max    float64  `json:"max"`
	Colors []string `json:"colors"`
}

type GetComparisonRequest struct {
	Period1Start time.Time `json:"period1_start"`
	Period1End   time.Time `json:"period1_end"`
	Period2Start time.Time `json:"period2_start"`
	Period2End   time.Time `json:"period2_end"`
}

type GetComparisonResponse struct {
	Period1     ComparisonPeriod `json:"period1"`
	Period2     ComparisonPeriod `json:"period2"`
	Differences DifferenceStats  `json:"differences"`
}

type ComparisonPeriod struct {
	Label         string  `json:"label"`
	TotalRequests int64   `json:"total_requests"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatency    float64 `json:"avg_latency_ms"`
	P95Latency    float64 `json:"p95_latency_ms"`
	ErrorRate     float64 `json:"error_rate"`
	QPS           float64 `json:"qps"`
}

type DifferenceStats struct {
	RequestsDiff    int64   `json:"requests_diff"`
	RequestsPct     float64 `json:"requests_pct"`
	SuccessRateDiff float64 `json:"success_rate_diff"`
	LatencyDiff     float64 `json:"latency_diff"`
	LatencyPct      float64 `json:"latency_pct"`
	ErrorRateDiff   float64 `json:"error_rate_diff"`
	QPSDiff         float64 `json:"qps_diff"`
	QPSPct          float64 `json:"qps_pct"`
}

// GetOverview returns a comprehensive dashboard overview.
//
//encore:api public method=POST path=/monitoring/dashboard/overview
func GetOverview(ctx context.Context, req *GetOverviewRequest) (*GetOverviewResponse, error) {
	if svc == nil || svc.collector == nil {
		return nil, errors.New("service not initialized")
	}

	dashboard := NewDashboard(svc.aggregator, svc.collector, svc.alertMgr)
	return dashboard.GetOverview(ctx, req)
}

func (d *Dashboard) GetOverview(ctx context.Context, req *GetOverviewRequest) (*GetOverviewResponse, error) {
	timeRange := req.TimeRange
	if timeRange == 0 {
		timeRange = 1 * time.Hour
	}

	now := time.Now()
	startTime := now.Add(-timeRange)

	// Get current stats
	currentStats := d.aggregator.GetStats(startTime, now)

	// Get previous period stats for trend calculation
	previousStart := startTime.Add(-timeRange)
	previousStats := d.aggregator.GetStats(previousStart, startTime)

	// Calculate summary with trends
	summary := SummaryStats{
		TotalRequests:    currentStats.TotalRequests,
		SuccessRate:      currentStats.SuccessRate,
		AvgLatency:       currentStats.AvgLatency,
		P95Latency:       currentStats.P95Latency,
		ErrorRate:        currentStats.ErrorRate,
		QPS:              currentStats.QPS,
		TrendSuccessRate: calculateTrend(currentStats.SuccessRate, previousStats.SuccessRate),
		TrendLatency:     calculateTrend(currentStats.P95Latency, previousStats.P95Latency),
		TrendQPS:         calculateTrend(currentStats.QPS, previousStats.QPS),
	}

	// Generate timeline (60 data points)
	timeline := d.generateTimeline(startTime, now, 60)

	topSources := d.getTopSources(ctx, 10)

	// Calculate system health
	systemHealth := d.calculateSystemHealth(currentStats)

	// Get recent alerts
	recentAlerts := d.alertMgr.GetRecentResolvedAlerts(5)
	activeAlerts := d.alertMgr.GetActiveAlerts()
	recentAlerts = append(activeAlerts, recentAlerts...)

	// Get recent anomalies
	recentAnomalies := d.detector.GetRecentAnomalies(timeRange)

	return &GetOverviewResponse{
		Summary:         summary,
		Timeline:        timeline,
		TopSources:      topSources,
		SystemHealth:    systemHealth,
		RecentAlerts:    recentAlerts,
		RecentAnomalies: recentAnomalies,
	}, nil
}

// GetLatencyDistribution returns latency distribution histogram.
//
//encore:api public method=POST path=/monitoring/dashboard/latency-distribution
func GetLatencyDistribution(ctx context.Context, req *GetLatencyDistributionRequest) (*GetLatencyDistributionResponse, error) {
	if svc == nil || svc.collector == nil {
		return nil, errors.New("service not initialized")
	}

	dashboard := NewDashboard(svc.aggregator, svc.collector, svc.alertMgr)
	return dashboard.GetLatencyDistribution(ctx, req)
}

func (d *Dashboard) GetLatencyDistribution(ctx context.Context, req *GetLatencyDistributionRequest) (*GetLatencyDistributionResponse, error) {
	window := req.Window
	if window == 0 {
		window = 5 * time.Minute
	}

	// Get recent latency samples
	samples := d.collector.latencyBuffer.GetRecent(window)
	if len(samples) == 0 {
		return &GetLatencyDistributionResponse{
			Buckets: []LatencyBucket{},
			Stats:   LatencyStats{},
		}, nil
	}

	// Calculate stats
	stats := calculateLatencyStats(samples)

	// Create histogram buckets
	buckets := []LatencyBucket{
		{MinMs: 0, MaxMs: 1},
		{MinMs: 1, MaxMs: 5},
		{MinMs: 5, MaxMs: 10},
		{MinMs: 10, MaxMs: 25},
		{MinMs: 25, MaxMs: 50},
		{MinMs: 50, MaxMs: 100},
		{MinMs: 100, MaxMs: 250},
		{MinMs: 250, MaxMs: 500},
		{MinMs: 500, MaxMs: 1000},
		{MinMs: 1000, MaxMs: math.MaxFloat64},
	}

	// Count samples in each bucket
	for _, sample := range samples {
		for i := range buckets {
			if sample.Value >= buckets[i].MinMs && sample.Value < buckets[i].MaxMs {
				buckets[i].Count++
				break
			}
		}
	}

	// Calculate percentages
	total := len(samples)
	for i := range buckets {
		buckets[i].Percent = float64(buckets[i].Count) / float64(total) * 100
	}

	return &GetLatencyDistributionResponse{
		Buckets: buckets,
		Stats:   stats,
	}, nil
}

// GetHeatmap returns heatmap data for visualization.
//
//encore:api public method=POST path=/monitoring/dashboard/heatmap
func GetHeatmap(ctx context.Context, req *GetHeatmapRequest) (*GetHeatmapResponse, error) {
	if svc == nil || svc.aggregator == nil {
		return nil, errors.New("service not initialized")
	}

	dashboard := NewDashboard(svc.aggregator, svc.collector, svc.alertMgr)
	return dashboard.GetHeatmap(ctx, req)
}

func (d *Dashboard) GetHeatmap(ctx context.Context, req *GetHeatmapRequest) (*GetHeatmapResponse, error) {
	duration := req.EndTime.Sub(req.StartTime)

	// Determine granularity based on duration
	var interval time.Duration
	var numBuckets int
	switch {
	case duration <= 1*time.Hour:
		interval = 1 * time.Minute
		numBuckets = 60
	case duration <= 6*time.Hour:
		interval = 5 * time.Minute
		numBuckets = 72
	case duration <= 24*time.Hour:
		interval = 15 * time.Minute
		numBuckets = 96
	default:
		interval = 1 * time.Hour
		numBuckets = 24
	}

	// Generate time buckets
	xLabels := make([]string, 0)
	currentTime := req.StartTime

	for i := 0; i < numBuckets && currentTime.Before(req.EndTime); i++ {
		xLabels = append(xLabels, currentTime.Format("15:04"))
		currentTime = currentTime.Add(interval)
	}

	// Define metric ranges (Y-axis)
	var yLabels []string
	var minValue, maxValue float64

	switch req.Metric {
	case "success_rate":
		yLabels = []string{"0-20%", "20-40%", "40-60%", "60-80%", "80-100%"}
		minValue, maxValue = 0, 1
	case "latency":
		yLabels = []string{"0-10ms", "10-25ms", "25-50ms", "50-100ms", "100ms+"}
		minValue, maxValue = 0, 200
	case "qps":
		yLabels = []string{"0-100", "100-500", "500-1K", "1K-5K", "5K+"}
		minValue, maxValue = 0, 10000
	case "error_rate":
		yLabels = []string{"0-1%", "1-2%", "2-5%", "5-10%", "10%+"}
		minValue, maxValue = 0, 0.1
	default:
		return nil, fmt.Errorf("unsupported metric: %s", req.Metric)
	}

	// Generate heatmap data
	data := make([][]HeatmapCell, len(yLabels))
	for i := range data {
		data[i] = make([]HeatmapCell, len(xLabels))
	}

	// Fill heatmap with actual data
	currentTime = req.StartTime
	for col := 0; col < len(xLabels) && currentTime.Before(req.EndTime); col++ {
		nextTime := currentTime.Add(interval)
		stats := d.aggregator.GetStats(currentTime, nextTime)

		var value float64
		switch req.Metric {
		case "success_rate":
			value = stats.SuccessRate
		case "latency":
			value = stats.P95Latency
		case "qps":
			value = stats.QPS
		case "error_rate":
			value = stats.ErrorRate
		}

		// Determine which row this value belongs to
		row := d.getHeatmapRow(value, minValue, maxValue, len(yLabels))

		if row >= 0 && row < len(yLabels) {
			data[row][col] = HeatmapCell{
				Value:   value,
				Color:   d.getHeatmapColor(value, minValue, maxValue),
				Tooltip: fmt.Sprintf("%s: %.2f at %s", req.Metric, value, currentTime.Format("15:04")),
			}
		}

		currentTime = nextTime
	}

	colorScale := ColorScale{
		Min:    minValue,
		Max:    maxValue,
		Colors: []string{"#00ff00", "#ffff00", "#ff9900", "#ff0000"},
	}

	return &GetHeatmapResponse{
		Data:       data,
		XLabels:    xLabels,
		YLabels:    yLabels,
		ColorScale: colorScale,
	}, nil
}

// GetComparison returns comparison between two time periods.
//
//encore:api public method=POST path=/monitoring/dashboard/comparison
func GetComparison(ctx context.Context, req *GetComparisonRequest) (*GetComparisonResponse, error) {
	if svc == nil || svc.aggregator == nil {
		return nil, errors.New("service not initialized")
	}

	dashboard := NewDashboard(svc.aggregator, svc.collector, svc.alertMgr)
	return dashboard.GetComparison(ctx, req)
}

func (d *Dashboard) GetComparison(ctx context.Context, req *GetComparisonRequest) (*GetComparisonResponse, error) {
	// Get stats for both periods
	stats1 := d.aggregator.GetStats(req.Period1Start, req.Period1End)
	stats2 := d.aggregator.GetStats(req.Period2Start, req.Period2End)

	period1 := ComparisonPeriod{
		Label:         "Period 1",
		TotalRequests: stats1.TotalRequests,
		SuccessRate:   stats1.SuccessRate,
		AvgLatency:    stats1.AvgLatency,
		P95Latency:    stats1.P95Latency,
		ErrorRate:     stats1.ErrorRate,
		QPS:           stats1.QPS,
	}

	period2 := ComparisonPeriod{
		Label:         "Period 2",
		TotalRequests: stats2.TotalRequests,
		SuccessRate:   stats2.SuccessRate,
		AvgLatency:    stats2.AvgLatency,
		P95Latency:    stats2.P95Latency,
		ErrorRate:     stats2.ErrorRate,
		QPS:           stats2.QPS,
	}

	// Calculate differences
	differences := DifferenceStats{
		RequestsDiff:    stats2.TotalRequests - stats1.TotalRequests,
		RequestsPct:     calculatePercentChange(float64(stats1.TotalRequests), float64(stats2.TotalRequests)),
		SuccessRateDiff: stats2.SuccessRate - stats1.SuccessRate,
		LatencyDiff:     stats2.P95Latency - stats1.P95Latency,
		LatencyPct:      calculatePercentChange(stats1.P95Latency, stats2.P95Latency),
		ErrorRateDiff:   stats2.ErrorRate - stats1.ErrorRate,
		QPSDiff:         stats2.QPS - stats1.QPS,
		QPSPct:          calculatePercentChange(stats1.QPS, stats2.QPS),
	}

	return &GetComparisonResponse{
		Period1:     period1,
		Period2:     period2,
		Differences: differences,
	}, nil
}

// Helper functions

// generateTimeline creates timeline data points for charting.
func (d *Dashboard) generateTimeline(start, end time.Time, numPoints int) []TimelinePoint {
	duration := end.Sub(start)
	interval := duration / time.Duration(numPoints)

	timeline := make([]TimelinePoint, 0, numPoints)
	currentTime := start

	for i := 0; i < numPoints && currentTime.Before(end); i++ {
		nextTime := currentTime.Add(interval)
		stats := d.aggregator.GetStats(currentTime, nextTime)

		timeline = append(timeline, TimelinePoint{
			Timestamp:   currentTime,
			Requests:    stats.TotalRequests,
			SuccessRate: stats.SuccessRate,
			AvgLatency:  stats.AvgLatency,
			P50Latency:  stats.P50Latency,
			P95Latency:  stats.P95Latency,
			P99Latency:  stats.P99Latency,
			ErrorRate:   stats.ErrorRate,
			QPS:         stats.QPS,
		})

		currentTime = nextTime
	}

	return timeline
}

// getTopSources ranks the currently active, non-blacklisted sources by
// reputation, worst first, so an operator scanning the dashboard sees the
// sources most likely to need attention at the top.
func (d *Dashboard) getTopSources(ctx context.Context, limit int) []SourceStat {
	resp, err := sourcemanager.GetActiveSources(ctx)
	if err != nil || resp == nil {
		return []SourceStat{}
	}

	sources := make([]SourceStat, 0, len(resp.Sources))
	for _, s := range resp.Sources {
		sources = append(sources, SourceStat{
			URL:         s.URL,
			Tier:        s.Tier,
			Reputation:  s.Reputation,
			SuccessRate: s.SuccessRate,
		})
	}

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Reputation < sources[j].Reputation
	})

	if len(sources) > limit {
		sources = sources[:limit]
	}
	return sources
}

// calculateSystemHealth computes overall system health score.
func (d *Dashboard) calculateSystemHealth(stats AggregatedStats) SystemHealth {
	score := 100.0
	issues := make([]HealthIssue, 0)
	recommendations := make([]string, 0)

	// Check fetch success rate
	if stats.SuccessRate < 0.7 {
		score -= 20
		issues = append(issues, HealthIssue{
			Type:     "fetch_reliability",
			Severity: "warning",
			Message:  fmt.Sprintf("Fetch success rate is low (%.1f%%)", stats.SuccessRate*100),
			Impact:   "Fewer fresh VPN configurations reach the output, and low-reputation sources risk auto-blacklisting",
		})
		recommendations = append(recommendations, "Review sources with a low reputation score and consider removing persistently failing ones")
	}

	// Check latency
	if stats.P95Latency > 100 {
		score -= 15
		severity := "warning"
		if stats.P95Latency > 200 {
			severity = "critical"
			score -= 15
		}
		issues = append(issues, HealthIssue{
			Type:     "performance",
			Severity: severity,
			Message:  fmt.Sprintf("P95 fetch latency is elevated (%.1fms)", stats.P95Latency),
			Impact:   "Pipeline runs take longer and are more likely to hit job timeouts",
		})
		recommendations = append(recommendations, "Investigate slow origins and consider lowering their fetch timeout or tier weight")
	}

	// Check error rate
	if stats.ErrorRate > 0.01 {
		score -= 25
		severity := "warning"
		if stats.ErrorRate > 0.05 {
			severity = "critical"
			score -= 25
		}
		issues = append(issues, HealthIssue{
			Type:     "reliability",
			Severity: severity,
			Message:  fmt.Sprintf("Error rate is high (%.2f%%)", stats.ErrorRate*100),
			Impact:   "Service reliability concerns",
		})
		recommendations = append(recommendations, "Review parser and fetch error logs and fix underlying issues")
	}

	// Check circuit breaker trip rate
	if stats.CircuitBreakerTrips > 0 {
		tripRate := float64(stats.CircuitBreakerTrips) / 60.0 // per second
		if tripRate > 10 {
			score -= 10
			issues = append(issues, HealthIssue{
				Type:     "origin_availability",
				Severity: "info",
				Message:  fmt.Sprintf("High circuit breaker trip rate (%.1f/sec)", tripRate),
				Impact:   "Several origin hosts are failing repeatedly and being temporarily skipped",
			})
			recommendations = append(recommendations, "Investigate the affected origin hosts; consider raising the per-host failure threshold if they are flaky rather than down")
		}
	}

	// Determine status
	status := "healthy"
	if score < 80 {
		status = "degraded"
	}
	if score < 60 {
		status = "critical"
	}

	return SystemHealth{
		Status:          status,
		Score:           math.Max(0, score),
		Issues:          issues,
		Recommendations: recommendations,
	}
}

// calculateTrend determines if a metric is trending up, down, or stable.
func calculateTrend(current, previous float64) string {
	if previous == 0 {
		return "stable"
	}

	change := (current - previous) / previous

	if change > 0.05 {
		return "up"
	} else if change < -0.05 {
		return "down"
	}
	return "stable"
}

// calculatePercentChange calculates percent change between two values.
func calculatePercentChange(oldVal, newVal float64) float64 {
	if oldVal == 0 {
		return 0
	}
	return ((newVal - oldVal) / oldVal) * 100
}

// getHeatmapRow determines which row a value belongs to in the heatmap.
func (d *Dashboard) getHeatmapRow(value, minValue, maxValue float64, numRows int) int {
	if value <= minValue {
		return numRows - 1
	}
	if value >= maxValue {
		return 0
	}

	normalized := (value - minValue) / (maxValue - minValue)
	row := int((1.0 - normalized) * float64(numRows))

	if row < 0 {
		row = 0
	}
	if row >= numRows {
		row = numRows - 1
	}

	return row
}

// getHeatmapColor returns a color for a heatmap cell based on value.
func (d *Dashboard) getHeatmapColor(value, minValue, maxValue float64) string {
	if maxValue == minValue {
		return "#00ff00"
	}

	normalized := (value - minValue) / (maxValue - minValue)

	// Green -> Yellow -> Orange -> Red gradient
	switch {
	case normalized < 0.25:
		return "#00ff00" // Green
	case normalized < 0.5:
		return "#ffff00" // Yellow
	case normalized < 0.75:
		return "#ff9900" // Orange
	default:
		return "#ff0000" // Red
	}
}

// Export functionality for external monitoring systems

type ExportFormat string

const (
	ExportFormatJSON       ExportFormat = "json"
	ExportFormatPrometheus ExportFormat = "prometheus"
	ExportFormatCSV        ExportFormat = "csv"
)

type ExportRequest struct {
	StartTime time.Time    `json:"start_time"`
	EndTime   time.Time    `json:"end_time"`
	Format    ExportFormat `json:"format"`
	Metrics   []string     `json:"metrics"` // Specific metrics to export
}

type ExportResponse struct {
	Format   ExportFormat `json:"format"`
	Data     string       `json:"data"`
	Filename string       `json:"filename"`
	Size     int          `json:"size"`
}

// ExportMetrics exports metrics in various formats.
//
//encore:api public method=POST path=/monitoring/dashboard/export
func ExportMetrics(ctx context.Context, req *ExportRequest) (*ExportResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}

	dashboard := NewDashboard(svc.aggregator, svc.collector, svc.alertMgr)
	return dashboard.ExportMetrics(ctx, req)
}

func (d *Dashboard) ExportMetrics(ctx context.Context, req *ExportRequest) (*ExportResponse, error) {
	// Get data for the time range
	buckets := d.collector.timeSeries.GetRange(req.StartTime, req.EndTime)

	var data string
	var filename string

	switch req.Format {
	case ExportFormatJSON:
		data = d.exportJSON(buckets, req.Metrics)
		filename = fmt.Sprintf("metrics-%s.json", time.Now().Format("20060102-150405"))

	case ExportFormatPrometheus:
		data = d.exportPrometheus(buckets)
		filename = fmt.Sprintf("metrics-%s.txt", time.Now().Format("20060102-150405"))

	case ExportFormatCSV:
		data = d.exportCSV(buckets, req.Metrics)
		filename = fmt.Sprintf("metrics-%s.csv", time.Now().Format("20060102-150405"))

	default:
		return nil, fmt.Errorf("unsupported export format: %s", req.Format)
	}

	return &ExportResponse{
		Format:   req.Format,
		Data:     data,
		Filename: filename,
		Size:     len(data),
	}, nil
}

// exportJSON exports metrics as JSON.
func (d *Dashboard) exportJSON(buckets []*Bucket, metrics []string) string {
	type JSONPoint struct {
		Timestamp        time.Time `json:"timestamp"`
		FetchSuccesses   int64     `json:"fetch_successes,omitempty"`
		FetchFailures    int64     `json:"fetch_failures,omitempty"`
		SuccessRate      float64   `json:"success_rate,omitempty"`
		AvgLatency       float64   `json:"avg_latency_ms,omitempty"`
		P95Latency       float64   `json:"p95_latency_ms,omitempty"`
		ErrorRate        float64   `json:"error_rate,omitempty"`
		SourceBlacklists int64     `json:"source_blacklists,omitempty"`
		JobsCompleted    int64     `json:"jobs_completed,omitempty"`
	}

	points := make([]JSONPoint, 0, len(buckets))
	for _, bucket := range buckets {
		point := JSONPoint{
			Timestamp: bucket.Timestamp,
		}

		// Include only requested metrics
		if len(metrics) == 0 || contains(metrics, "fetch_successes") {
			point.FetchSuccesses = bucket.FetchSuccesses
		}
		if len(metrics) == 0 || contains(metrics, "fetch_failures") {
			point.FetchFailures = bucket.FetchFailures
		}
		if len(metrics) == 0 || contains(metrics, "success_rate") {
			total := bucket.FetchSuccesses + bucket.FetchFailures
			if total > 0 {
				point.SuccessRate = float64(bucket.FetchSuccesses) / float64(total)
			}
		}
		if len(metrics) == 0 || contains(metrics, "latency") {
			if len(bucket.Latencies) > 0 {
				sum := 0.0
				for _, lat := range bucket.Latencies {
					sum += lat
				}
				point.AvgLatency = sum / float64(len(bucket.Latencies))

				// Calculate P95
				sorted := make([]float64, len(bucket.Latencies))
				copy(sorted, bucket.Latencies)
				sort.Float64s(sorted)
				point.P95Latency = percentile(sorted, 0.95)
			}
		}
		if len(metrics) == 0 || contains(metrics, "errors") {
			total := bucket.FetchSuccesses + bucket.FetchFailures
			if total > 0 {
				point.ErrorRate = float64(bucket.Errors) / float64(total)
			}
		}
		if len(metrics) == 0 || contains(metrics, "source_blacklists") {
			point.SourceBlacklists = bucket.SourceBlacklists
		}
		if len(metrics) == 0 || contains(metrics, "jobs_completed") {
			point.JobsCompleted = bucket.JobsCompleted
		}

		points = append(points, point)
	}

	jsonData, _ := json.MarshalIndent(points, "", "  ")
	return string(jsonData)
}

// exportPrometheus exports the latest bucket's counters and latency
// quantiles through a fresh client_golang registry, rather than
// hand-formatting the exposition text.
func (d *Dashboard) exportPrometheus(buckets []*Bucket) string {
	if len(buckets) == 0 {
		return ""
	}
	latest := buckets[len(buckets)-1]
	total := latest.FetchSuccesses + latest.FetchFailures

	registry := prometheus.NewRegistry()

	fetchSuccesses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vpn_fetch_successes_total",
		Help: "Total number of successful source fetches in the latest bucket",
	})
	fetchSuccesses.Add(float64(latest.FetchSuccesses))

	fetchFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vpn_fetch_failures_total",
		Help: "Total number of failed source fetches in the latest bucket",
	})
	fetchFailures.Add(float64(latest.FetchFailures))

	fetchErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vpn_fetch_errors_total",
		Help: "Total number of fetch/parse errors in the latest bucket",
	})
	fetchErrors.Add(float64(latest.Errors))

	sourceBlacklists := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vpn_source_blacklists_total",
		Help: "Total number of sources auto-blacklisted in the latest bucket",
	})
	sourceBlacklists.Add(float64(latest.SourceBlacklists))

	jobsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vpn_jobs_completed_total",
		Help: "Total number of pipeline jobs that reached a terminal state in the latest bucket",
	})
	jobsCompleted.Add(float64(latest.JobsCompleted))

	registry.MustRegister(fetchSuccesses, fetchFailures, fetchErrors, sourceBlacklists, jobsCompleted)

	if total > 0 {
		successRate := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vpn_fetch_success_rate",
			Help: "Fraction of fetch attempts that succeeded in the latest bucket (0-1)",
		})
		successRate.Set(float64(latest.FetchSuccesses) / float64(total))
		registry.MustRegister(successRate)
	}

	if len(latest.Latencies) > 0 {
		sorted := make([]float64, len(latest.Latencies))
		copy(sorted, latest.Latencies)
		sort.Float64s(sorted)

		latencyQuantiles := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vpn_fetch_latency_ms",
			Help: "Fetch latency quantiles in milliseconds for the latest bucket",
		}, []string{"quantile"})
		latencyQuantiles.WithLabelValues("0.5").Set(percentile(sorted, 0.5))
		latencyQuantiles.WithLabelValues("0.9").Set(percentile(sorted, 0.9))
		latencyQuantiles.WithLabelValues("0.95").Set(percentile(sorted, 0.95))
		latencyQuantiles.WithLabelValues("0.99").Set(percentile(sorted, 0.99))

		latencyCount := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vpn_fetch_latency_ms_count",
			Help: "Number of latency samples in the latest bucket",
		})
		latencyCount.Set(float64(len(latest.Latencies)))

		registry.MustRegister(latencyQuantiles, latencyCount)
	}

	families, err := registry.Gather()
	if err != nil {
		return ""
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return ""
		}
	}
	return buf.String()
}

// exportCSV exports metrics as CSV.
func (d *Dashboard) exportCSV(buckets []*Bucket, metrics []string) string {
	var output string

	// Header
	headers := []string{"timestamp"}
	if len(metrics) == 0 || contains(metrics, "fetch_successes") {
		headers = append(headers, "fetch_successes")
	}
	if len(metrics) == 0 || contains(metrics, "fetch_failures") {
		headers = append(headers, "fetch_failures")
	}
	if len(metrics) == 0 || contains(metrics, "success_rate") {
		headers = append(headers, "success_rate")
	}
	if len(metrics) == 0 || contains(metrics, "latency") {
		headers = append(headers, "avg_latency_ms", "p95_latency_ms")
	}
	if len(metrics) == 0 || contains(metrics, "errors") {
		headers = append(headers, "errors", "error_rate")
	}
	if len(metrics) == 0 || contains(metrics, "source_blacklists") {
		headers = append(headers, "source_blacklists")
	}
	if len(metrics) == 0 || contains(metrics, "jobs_completed") {
		headers = append(headers, "jobs_completed")
	}

	output += join(headers, ",") + "\n"

	// Data rows
	for _, bucket := range buckets {
		row := []string{bucket.Timestamp.Format(time.RFC3339)}

		if len(metrics) == 0 || contains(metrics, "fetch_successes") {
			row = append(row, fmt.Sprintf("%d", bucket.FetchSuccesses))
		}
		if len(metrics) == 0 || contains(metrics, "fetch_failures") {
			row = append(row, fmt.Sprintf("%d", bucket.FetchFailures))
		}
		if len(metrics) == 0 || contains(metrics, "success_rate") {
			total := bucket.FetchSuccesses + bucket.FetchFailures
			successRate := 0.0
			if total > 0 {
				successRate = float64(bucket.FetchSuccesses) / float64(total)
			}
			row = append(row, fmt.Sprintf("%.4f", successRate))
		}
		if len(metrics) == 0 || contains(metrics, "latency") {
			if len(bucket.Latencies) > 0 {
				sum := 0.0
				for _, lat := range bucket.Latencies {
					sum += lat
				}
				avgLatency := sum / float64(len(bucket.Latencies))

				sorted := make([]float64, len(bucket.Latencies))
				copy(sorted, bucket.Latencies)
				sort.Float64s(sorted)
				p95Latency := percentile(sorted, 0.95)

				row = append(row, fmt.Sprintf("%.2f", avgLatency), fmt.Sprintf("%.2f", p95Latency))
			} else {
				row = append(row, "0", "0")
			}
		}
		if len(metrics) == 0 || contains(metrics, "errors") {
			total := bucket.FetchSuccesses + bucket.FetchFailures
			errorRate := 0.0
			if total > 0 {
				errorRate = float64(bucket.Errors) / float64(total)
			}
			row = append(row, fmt.Sprintf("%d", bucket.Errors), fmt.Sprintf("%.4f", errorRate))
		}
		if len(metrics) == 0 || contains(metrics, "source_blacklists") {
			row = append(row, fmt.Sprintf("%d", bucket.SourceBlacklists))
		}
		if len(metrics) == 0 || contains(metrics, "jobs_completed") {
			row = append(row, fmt.Sprintf("%d", bucket.JobsCompleted))
		}

		output += join(row, ",") + "\n"
	}

	return output
}

// Helper functions

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func join(items []string, sep string) string {
	result := ""
	for i, item := range items {
		if i > 0 {
			result += sep
		}
		result += item
	}
	return result
}
