package content

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	engerrors "client-optimizer/pkg/errors"
	"client-optimizer/pkg/profile"
)

func newProfile() *profile.OptimizationProfile {
	return profile.New("user-1", time.Now())
}

func TestOptimizeFailOpen(t *testing.T) {
	tests := []struct {
		name        string
		transformer Transformer
	}{
		{
			name: "panicking transformer",
			transformer: TransformerFunc(func(p *profile.OptimizationProfile, payload Payload) ([]string, error) {
				payload["title"] = "mutated"
				panic("boom")
			}),
		},
		{
			name: "failing transformer",
			transformer: TransformerFunc(func(p *profile.OptimizationProfile, payload Payload) ([]string, error) {
				payload["title"] = "mutated"
				return nil, errors.New("cannot transform")
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptimizer(nil)
			o.Register(tt.transformer, "image")

			original := Payload{"title": "hello", "nested": map[string]interface{}{"a": 1.0}}
			res := o.Optimize(newProfile(), "image", original)

			require.NotNil(t, res.Payload)
			assert.Equal(t, Payload{"title": "hello", "nested": map[string]interface{}{"a": 1.0}}, res.Payload)
			assert.Empty(t, res.Optimizations)
			assert.Error(t, res.Err)
			category, ok := engerrors.CategoryOf(res.Err)
			assert.True(t, ok)
			assert.Equal(t, engerrors.CategoryContentOptimization, category)
		})
	}
}

func TestOptimizeNilProfileReturnsOriginal(t *testing.T) {
	original := Payload{"title": "hello"}
	res := NewOptimizer(nil).Optimize(nil, "blog", original)
	assert.Equal(t, original, res.Payload)
	assert.Empty(t, res.Optimizations)
	assert.NoError(t, res.Err)
}

func TestOptimizeDoesNotMutateInput(t *testing.T) {
	p := newProfile()
	p.DeviceInfo.ConnectionSpeed = profile.SpeedSlow

	original := Payload{"title": "post", "comments": []interface{}{"a", "b"}}
	res := NewOptimizer(nil).Optimize(p, "blog", original)

	assert.Contains(t, original, "comments")
	assert.NotContains(t, res.Payload, "comments")
}

func TestUnknownTypeUsesGeneric(t *testing.T) {
	p := newProfile()
	p.PerformanceSettings.Content.EnableMinification = true

	res := NewOptimizer(nil).Optimize(p, "podcast", Payload{"id": "x"})
	assert.NoError(t, res.Err)
	assert.Equal(t, true, res.Payload["minified"])
	assert.Equal(t, "public, max-age=3600", res.Payload["cacheControl"])
	assert.Equal(t, "gzip", res.Payload["contentEncoding"])
	assert.Equal(t, []string{"marked for minification", "added cache headers"}, res.Optimizations)
}

func TestTextTransform(t *testing.T) {
	p := newProfile()
	p.UXSettings.Readability.FontSizeMultiplier = 1.5
	p.UXSettings.Readability.DarkMode = true
	p.DeviceInfo.ConnectionType = profile.Connection2G

	res := NewOptimizer(nil).Optimize(p, "Blog", Payload{"fontSize": 16.0, "ads": []interface{}{}, "body": "text"})
	require.NoError(t, res.Err)

	assert.Equal(t, 24.0, res.Payload["fontSize"])
	assert.Equal(t, "dark", res.Payload["theme"])
	assert.Equal(t, false, res.Payload["prefetchNext"])
	assert.NotContains(t, res.Payload, "ads")
	assert.Equal(t, "text", res.Payload["body"])
}

func TestImageTransform(t *testing.T) {
	tests := []struct {
		level   profile.CompressionLevel
		quality int
	}{
		{profile.CompressionLow, 90},
		{profile.CompressionMedium, 80},
		{profile.CompressionHigh, 60},
		{profile.CompressionMax, 40},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			p := newProfile()
			p.PerformanceSettings.Image.CompressionLevel = tt.level
			res := NewOptimizer(nil).Optimize(p, "image", Payload{"src": "a.png"})
			assert.Equal(t, tt.quality, res.Payload["quality"])
		})
	}

	t.Run("clamps dimensions and tags format", func(t *testing.T) {
		p := newProfile()
		p.PerformanceSettings.Image.MaxWidth = 1000
		p.PerformanceSettings.Image.MaxHeight = 1000
		p.PerformanceSettings.Image.EnableWebP = true

		res := NewOptimizer(nil).Optimize(p, "image", Payload{"width": 4000.0, "height": 2000.0})
		assert.Equal(t, 1000.0, res.Payload["width"])
		assert.Equal(t, 500.0, res.Payload["height"])
		assert.Equal(t, "webp", res.Payload["format"])
		assert.Equal(t, "lazy", res.Payload["loading"])
	})
}

func TestVideoTransform(t *testing.T) {
	p := newProfile()
	p.PerformanceSettings.Battery.EnableBatterySaver = true

	res := NewOptimizer(nil).Optimize(p, "video", Payload{"autoplay": true})
	assert.Equal(t, false, res.Payload["autoplay"])
	assert.Equal(t, "none", res.Payload["preload"])
	assert.Equal(t, "1080p", res.Payload["quality"])

	p = newProfile()
	p.DeviceInfo.ConnectionSpeed = profile.SpeedSlow
	res = NewOptimizer(nil).Optimize(p, "video", Payload{})
	assert.Equal(t, "360p", res.Payload["quality"])
}

func TestListTransform(t *testing.T) {
	tests := []struct {
		name     string
		device   profile.DeviceType
		speed    profile.ConnectionSpeed
		pageSize int
		infinite bool
	}{
		{name: "desktop fast", device: profile.DeviceDesktop, speed: profile.SpeedFast, pageSize: 20},
		{name: "mobile fast", device: profile.DeviceMobile, speed: profile.SpeedFast, pageSize: 10, infinite: true},
		{name: "mobile slow", device: profile.DeviceMobile, speed: profile.SpeedSlow, pageSize: 5, infinite: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newProfile()
			p.DeviceInfo.DeviceType = tt.device
			p.DeviceInfo.ConnectionSpeed = tt.speed

			res := NewOptimizer(nil).Optimize(p, "pagination", Payload{"pageSize": 20.0})
			assert.Equal(t, tt.pageSize, res.Payload["pageSize"])
			if tt.infinite {
				assert.Equal(t, true, res.Payload["infiniteScroll"])
			} else {
				assert.NotContains(t, res.Payload, "infiniteScroll")
			}
		})
	}
}
