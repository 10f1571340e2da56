package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
)

// GeolocationService resolves a reporter's rough location from their IP so
// persisted reports can feed regional trend views. Lookups are best-effort:
// failures return "Unknown" and never block a report.
type GeolocationService struct {
	appContext.DefaultService

	httpClient  *http.Client
	apiURL      string
	redisSvc    *RedisService
	cacheExpiry time.Duration
}

const GEOLOCATION_SVC = "geolocation_svc"

func (svc GeolocationService) Id() string {
	return GEOLOCATION_SVC
}

func (svc *GeolocationService) Configure(ctx *appContext.Context) error {
	svc.httpClient = &http.Client{
		Timeout: 10 * time.Second,
	}
	svc.apiURL = "http://ip-api.com/json"
	svc.cacheExpiry = 24 * time.Hour
	return svc.DefaultService.Configure(ctx)
}

func (svc *GeolocationService) Start() error {
	if redisSvc, ok := svc.Service(REDIS_SVC).(*RedisService); ok {
		svc.redisSvc = redisSvc
	}
	return nil
}

func (svc *GeolocationService) GetLocationByIP(ip string) (string, error) {
	if ip == "" || ip == "127.0.0.1" || ip == "::1" {
		return "Local", nil
	}

	ctx := context.Background()
	cacheKey := fmt.Sprintf("geolocation:simple:%s", ip)

	if svc.redisSvc != nil {
		cachedLocation, err := svc.redisSvc.Get(ctx, cacheKey)
		if err == nil && cachedLocation != "" {
			log.WithField("ip", ip).Debug("Geolocation cache hit")
			return cachedLocation, nil
		}
	}

	url := fmt.Sprintf("%s/%s?fields=status,country,regionName,city", svc.apiURL, ip)

	resp, err := svc.httpClient.Get(url)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Error("Failed to get geolocation")
		return "Unknown", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).WithField("ip", ip).Error("Geolocation API returned non-200 status")
		return "Unknown", nil
	}

	var result struct {
		Status     string `json:"status"`
		Country    string `json:"country"`
		RegionName string `json:"regionName"`
		City       string `json:"city"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.WithError(err).WithField("ip", ip).Error("Failed to decode geolocation response")
		return "Unknown", nil
	}

	if result.Status != "success" {
		log.WithField("status", result.Status).WithField("ip", ip).Warn("Geolocation lookup failed")
		return "Unknown", nil
	}

	location := ""
	if result.City != "" {
		location = result.City
	}
	if result.RegionName != "" {
		if location != "" {
			location += ", "
		}
		location += result.RegionName
	}
	if result.Country != "" {
		if location != "" {
			location += ", "
		}
		location += result.Country
	}

	if location == "" {
		location = "Unknown"
	}

	if svc.redisSvc != nil {
		if err := svc.redisSvc.Set(ctx, cacheKey, location, svc.cacheExpiry); err != nil {
			log.WithError(err).Debug("Failed to cache geolocation")
		}
	}

	return location, nil
}
