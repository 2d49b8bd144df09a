package content

import (
	"fmt"
	"math"

	"client-optimizer/pkg/profile"
)

// Keys dropped from text content on slow connections.
var nonEssentialKeys = []string{"relatedPosts", "comments", "embeds", "ads", "socialWidgets"}

// QualityFor maps a compression level to an image quality numeral.
func QualityFor(level profile.CompressionLevel) int {
	switch level {
	case profile.CompressionLow:
		return 90
	case profile.CompressionHigh:
		return 60
	case profile.CompressionMax:
		return 40
	default:
		return 80
	}
}

// VideoQualityFor selects a quality tier from the connection.
func VideoQualityFor(d profile.DeviceInfo, dataSaver bool) string {
	switch {
	case d.ConnectionType == profile.ConnectionOffline:
		return "240p"
	case d.IsSlowConnection():
		return "360p"
	case dataSaver, d.ConnectionSpeed == profile.SpeedModerate:
		return "480p"
	case d.DeviceType == profile.DeviceMobile:
		return "720p"
	default:
		return "1080p"
	}
}

func transformText(p *profile.OptimizationProfile, payload Payload) ([]string, error) {
	var applied []string
	r := p.UXSettings.Readability

	if r.FontSizeMultiplier != 0 && r.FontSizeMultiplier != 1 {
		payload["fontSizeMultiplier"] = r.FontSizeMultiplier
		if size, ok := number(payload["fontSize"]); ok {
			payload["fontSize"] = math.Round(size*r.FontSizeMultiplier*10) / 10
		}
		applied = append(applied, fmt.Sprintf("scaled font size by %.2gx", r.FontSizeMultiplier))
	}
	if r.LineHeightMultiplier != 0 {
		payload["lineHeight"] = r.LineHeightMultiplier
	}

	if p.DeviceInfo.IsSlowConnection() {
		removed := 0
		for _, key := range nonEssentialKeys {
			if _, ok := payload[key]; ok {
				delete(payload, key)
				removed++
			}
		}
		if removed > 0 {
			applied = append(applied, fmt.Sprintf("removed %d non-essential elements", removed))
		}
		payload["prefetchNext"] = false
		applied = append(applied, "disabled next-page prefetch")
	}

	theme := "light"
	if r.DarkMode {
		theme = "dark"
	}
	payload["theme"] = theme
	applied = append(applied, "applied "+theme+" theme")
	if r.HighContrast {
		payload["highContrast"] = true
		applied = append(applied, "enabled high contrast")
	}
	if r.DyslexicFont {
		payload["fontFamily"] = "OpenDyslexic"
		applied = append(applied, "applied dyslexia-friendly font")
	}
	return applied, nil
}

func transformImage(p *profile.OptimizationProfile, payload Payload) ([]string, error) {
	img := p.PerformanceSettings.Image
	var applied []string

	quality := QualityFor(img.CompressionLevel)
	payload["quality"] = quality
	applied = append(applied, fmt.Sprintf("set image quality to %d", quality))

	width, hasWidth := number(payload["width"])
	height, hasHeight := number(payload["height"])
	if hasWidth && hasHeight && width > 0 && height > 0 {
		scale := 1.0
		if img.MaxWidth > 0 && width > float64(img.MaxWidth) {
			scale = math.Min(scale, float64(img.MaxWidth)/width)
		}
		if img.MaxHeight > 0 && height > float64(img.MaxHeight) {
			scale = math.Min(scale, float64(img.MaxHeight)/height)
		}
		if scale < 1 {
			payload["width"] = math.Floor(width * scale)
			payload["height"] = math.Floor(height * scale)
			applied = append(applied, fmt.Sprintf("resized image to %.0fx%.0f", width*scale, height*scale))
		}
	} else {
		if img.MaxWidth > 0 {
			payload["maxWidth"] = img.MaxWidth
		}
		if img.MaxHeight > 0 {
			payload["maxHeight"] = img.MaxHeight
		}
	}

	if img.EnableWebP {
		payload["format"] = "webp"
		applied = append(applied, "preferred WebP format")
	}
	if img.EnableLazyLoading {
		payload["loading"] = "lazy"
		applied = append(applied, "enabled lazy loading")
	}
	if img.EnableAdaptiveImages {
		payload["responsive"] = true
	}
	return applied, nil
}

func transformVideo(p *profile.OptimizationProfile, payload Payload) ([]string, error) {
	var applied []string
	constrained := p.DeviceInfo.IsSlowConnection() || p.PerformanceSettings.Battery.EnableBatterySaver

	if constrained {
		payload["autoplay"] = false
		payload["preload"] = "none"
		applied = append(applied, "disabled autoplay", "set minimal preload")
	} else if _, ok := payload["preload"]; !ok {
		payload["preload"] = "metadata"
	}

	tier := VideoQualityFor(p.DeviceInfo, p.AdaptiveBehavior.Bandwidth.DataSaver)
	payload["quality"] = tier
	applied = append(applied, "selected "+tier+" quality")
	return applied, nil
}

const (
	defaultPageSize = 20
	mobilePageSize  = 10
	slowPageSize    = 5
)

func transformList(p *profile.OptimizationProfile, payload Payload) ([]string, error) {
	var applied []string

	pageSize := defaultPageSize
	if n, ok := number(payload["pageSize"]); ok && n > 0 {
		pageSize = int(n)
	}
	original := pageSize

	if p.DeviceInfo.DeviceType == profile.DeviceMobile {
		if pageSize > mobilePageSize {
			pageSize = mobilePageSize
		}
		payload["infiniteScroll"] = true
		applied = append(applied, "enabled infinite scroll")
	}
	if p.DeviceInfo.IsSlowConnection() {
		if pageSize > slowPageSize {
			pageSize = slowPageSize
		}
		payload["preloadImages"] = false
		applied = append(applied, "disabled image preloading")
	}

	payload["pageSize"] = pageSize
	if pageSize != original {
		applied = append(applied, fmt.Sprintf("reduced page size to %d", pageSize))
	}
	return applied, nil
}

func transformGeneric(p *profile.OptimizationProfile, payload Payload) ([]string, error) {
	var applied []string
	c := p.PerformanceSettings.Content

	if c.EnableMinification {
		payload["minified"] = true
		applied = append(applied, "marked for minification")
	}
	if c.EnableContentCaching {
		payload["cacheControl"] = fmt.Sprintf("public, max-age=%d", c.CacheTTLSeconds)
		applied = append(applied, "added cache headers")
	} else {
		payload["cacheControl"] = "no-store"
	}
	switch {
	case c.EnableBrotli:
		payload["contentEncoding"] = "br"
	case c.EnableGzip:
		payload["contentEncoding"] = "gzip"
	}
	return applied, nil
}
