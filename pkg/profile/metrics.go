package profile

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fastjson"
)

// PageLoadMetrics are reported in milliseconds, except CLS which is unitless.
type PageLoadMetrics struct {
	FirstContentfulPaint   *float64 `json:"firstContentfulPaint,omitempty" bson:"first_contentful_paint,omitempty" validate:"omitempty,gte=0"`
	LargestContentfulPaint *float64 `json:"largestContentfulPaint,omitempty" bson:"largest_contentful_paint,omitempty" validate:"omitempty,gte=0"`
	FirstInputDelay        *float64 `json:"firstInputDelay,omitempty" bson:"first_input_delay,omitempty" validate:"omitempty,gte=0"`
	CumulativeLayoutShift  *float64 `json:"cumulativeLayoutShift,omitempty" bson:"cumulative_layout_shift,omitempty" validate:"omitempty,gte=0"`
	TimeToInteractive      *float64 `json:"timeToInteractive,omitempty" bson:"time_to_interactive,omitempty" validate:"omitempty,gte=0"`
	TotalBytes             *float64 `json:"totalBytes,omitempty" bson:"total_bytes,omitempty" validate:"omitempty,gte=0"`
	RequestCount           *float64 `json:"requestCount,omitempty" bson:"request_count,omitempty" validate:"omitempty,gte=0"`
}

// InteractionMetrics rates are percentages.
type InteractionMetrics struct {
	SessionDuration  *float64 `json:"sessionDuration,omitempty" bson:"session_duration,omitempty" validate:"omitempty,gte=0"`
	BounceRate       *float64 `json:"bounceRate,omitempty" bson:"bounce_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	PagesPerSession  *float64 `json:"pagesPerSession,omitempty" bson:"pages_per_session,omitempty" validate:"omitempty,gte=0"`
	ScrollDepth      *float64 `json:"scrollDepth,omitempty" bson:"scroll_depth,omitempty" validate:"omitempty,gte=0,lte=100"`
	ClickThroughRate *float64 `json:"clickThroughRate,omitempty" bson:"click_through_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	ConversionRate   *float64 `json:"conversionRate,omitempty" bson:"conversion_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type NetworkMetrics struct {
	AverageResponseTime *float64 `json:"averageResponseTime,omitempty" bson:"average_response_time,omitempty" validate:"omitempty,gte=0"`
	ErrorRate           *float64 `json:"errorRate,omitempty" bson:"error_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	TimeoutRate         *float64 `json:"timeoutRate,omitempty" bson:"timeout_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	RetryRate           *float64 `json:"retryRate,omitempty" bson:"retry_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	CacheHitRate        *float64 `json:"cacheHitRate,omitempty" bson:"cache_hit_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// ResourceMetrics: battery in percent per hour, memory and network in MB.
type ResourceMetrics struct {
	BatteryUsage *float64 `json:"batteryUsage,omitempty" bson:"battery_usage,omitempty" validate:"omitempty,gte=0"`
	MemoryUsage  *float64 `json:"memoryUsage,omitempty" bson:"memory_usage,omitempty" validate:"omitempty,gte=0"`
	CPUUsage     *float64 `json:"cpuUsage,omitempty" bson:"cpu_usage,omitempty" validate:"omitempty,gte=0,lte=100"`
	NetworkUsage *float64 `json:"networkUsage,omitempty" bson:"network_usage,omitempty" validate:"omitempty,gte=0"`
	StorageUsage *float64 `json:"storageUsage,omitempty" bson:"storage_usage,omitempty" validate:"omitempty,gte=0"`
}

// PerformanceMetrics is the latest merged telemetry for a subject.
// A nil leaf means the value was never reported.
type PerformanceMetrics struct {
	PageLoad    *PageLoadMetrics    `json:"pageLoad,omitempty" bson:"page_load,omitempty"`
	Interaction *InteractionMetrics `json:"interaction,omitempty" bson:"interaction,omitempty"`
	Network     *NetworkMetrics     `json:"network,omitempty" bson:"network,omitempty"`
	Resources   *ResourceMetrics    `json:"resources,omitempty" bson:"resources,omitempty"`
	LastUpdated time.Time           `json:"lastUpdated,omitempty" bson:"last_updated,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func mergeLeaf(dst **float64, src *float64) {
	if src != nil {
		*dst = Float(*src)
	}
}

// Merge overwrites only the leaves present in src.
func (m *PerformanceMetrics) Merge(src PerformanceMetrics) {
	if src.PageLoad != nil {
		if m.PageLoad == nil {
			m.PageLoad = &PageLoadMetrics{}
		}
		d, s := m.PageLoad, src.PageLoad
		mergeLeaf(&d.FirstContentfulPaint, s.FirstContentfulPaint)
		mergeLeaf(&d.LargestContentfulPaint, s.LargestContentfulPaint)
		mergeLeaf(&d.FirstInputDelay, s.FirstInputDelay)
		mergeLeaf(&d.CumulativeLayoutShift, s.CumulativeLayoutShift)
		mergeLeaf(&d.TimeToInteractive, s.TimeToInteractive)
		mergeLeaf(&d.TotalBytes, s.TotalBytes)
		mergeLeaf(&d.RequestCount, s.RequestCount)
	}
	if src.Interaction != nil {
		if m.Interaction == nil {
			m.Interaction = &InteractionMetrics{}
		}
		d, s := m.Interaction, src.Interaction
		mergeLeaf(&d.SessionDuration, s.SessionDuration)
		mergeLeaf(&d.BounceRate, s.BounceRate)
		mergeLeaf(&d.PagesPerSession, s.PagesPerSession)
		mergeLeaf(&d.ScrollDepth, s.ScrollDepth)
		mergeLeaf(&d.ClickThroughRate, s.ClickThroughRate)
		mergeLeaf(&d.ConversionRate, s.ConversionRate)
	}
	if src.Network != nil {
		if m.Network == nil {
			m.Network = &NetworkMetrics{}
		}
		d, s := m.Network, src.Network
		mergeLeaf(&d.AverageResponseTime, s.AverageResponseTime)
		mergeLeaf(&d.ErrorRate, s.ErrorRate)
		mergeLeaf(&d.TimeoutRate, s.TimeoutRate)
		mergeLeaf(&d.RetryRate, s.RetryRate)
		mergeLeaf(&d.CacheHitRate, s.CacheHitRate)
	}
	if src.Resources != nil {
		if m.Resources == nil {
			m.Resources = &ResourceMetrics{}
		}
		d, s := m.Resources, src.Resources
		mergeLeaf(&d.BatteryUsage, s.BatteryUsage)
		mergeLeaf(&d.MemoryUsage, s.MemoryUsage)
		mergeLeaf(&d.CPUUsage, s.CPUUsage)
		mergeLeaf(&d.NetworkUsage, s.NetworkUsage)
		mergeLeaf(&d.StorageUsage, s.StorageUsage)
	}
	if !src.LastUpdated.IsZero() {
		m.LastUpdated = src.LastUpdated
	}
}

// Clone returns a deep copy.
func (m PerformanceMetrics) Clone() PerformanceMetrics {
	out := PerformanceMetrics{LastUpdated: m.LastUpdated}
	out.Merge(m)
	return out
}

// IsEmpty reports whether no group was supplied.
func (m PerformanceMetrics) IsEmpty() bool {
	return m.PageLoad == nil && m.Interaction == nil && m.Network == nil && m.Resources == nil
}

// Accessors return ok=false for unreported values.

func (m PerformanceMetrics) FCP() (float64, bool) {
	if m.PageLoad == nil {
		return 0, false
	}
	return deref(m.PageLoad.FirstContentfulPaint)
}

func (m PerformanceMetrics) TTI() (float64, bool) {
	if m.PageLoad == nil {
		return 0, false
	}
	return deref(m.PageLoad.TimeToInteractive)
}

func (m PerformanceMetrics) ErrorRate() (float64, bool) {
	if m.Network == nil {
		return 0, false
	}
	return deref(m.Network.ErrorRate)
}

func (m PerformanceMetrics) CacheHitRate() (float64, bool) {
	if m.Network == nil {
		return 0, false
	}
	return deref(m.Network.CacheHitRate)
}

func (m PerformanceMetrics) BounceRate() (float64, bool) {
	if m.Interaction == nil {
		return 0, false
	}
	return deref(m.Interaction.BounceRate)
}

func (m PerformanceMetrics) BatteryUsage() (float64, bool) {
	if m.Resources == nil {
		return 0, false
	}
	return deref(m.Resources.BatteryUsage)
}

func (m PerformanceMetrics) MemoryUsage() (float64, bool) {
	if m.Resources == nil {
		return 0, false
	}
	return deref(m.Resources.MemoryUsage)
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

var metricGroups = []string{"pageLoad", "interaction", "network", "resources"}

// DecodeMetrics parses a metrics report. The payload must be a JSON object,
// every present group must be an object and every leaf a number.
func DecodeMetrics(raw []byte) (PerformanceMetrics, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(raw)
	if err != nil {
		return PerformanceMetrics{}, fmt.Errorf("metrics payload is not valid JSON: %w", err)
	}
	if v.Type() != fastjson.TypeObject {
		return PerformanceMetrics{}, fmt.Errorf("metrics payload must be an object, got %s", v.Type())
	}
	for _, group := range metricGroups {
		g := v.Get(group)
		if g == nil || g.Type() == fastjson.TypeNull {
			continue
		}
		obj, err := g.Object()
		if err != nil {
			return PerformanceMetrics{}, fmt.Errorf("metrics group %q must be an object", group)
		}
		var leafErr error
		obj.Visit(func(key []byte, leaf *fastjson.Value) {
			if leafErr != nil {
				return
			}
			switch leaf.Type() {
			case fastjson.TypeNumber, fastjson.TypeNull:
			default:
				leafErr = fmt.Errorf("metric %s.%s must be a number", group, key)
			}
		})
		if leafErr != nil {
			return PerformanceMetrics{}, leafErr
		}
	}

	var m PerformanceMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return PerformanceMetrics{}, fmt.Errorf("failed to decode metrics: %w", err)
	}
	m.LastUpdated = time.Time{}
	return m, nil
}
