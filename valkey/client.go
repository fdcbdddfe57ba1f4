package valkeystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/byt3hx/ollama-ai-analyzer/utils"
	"github.com/valkey-io/valkey-go"
	"github.com/valkey-io/valkey-go/valkeycompat"
	"go.uber.org/zap"
)

var Ctx = context.Background()
var Client valkeycompat.Cmdable
var RawClient valkey.Client

// Enabled reports whether a valkey host is configured.
func Enabled() bool {
	return os.Getenv("VALKEY_HOST") != "" || os.Getenv("VALKEY_USE_SENTINEL") == "true"
}

func InitValkey(logger *zap.Logger) error {
	useSentinel := os.Getenv("VALKEY_USE_SENTINEL") == "true"

	var vk valkey.Client
	var err error

	if useSentinel {
		sentinelCSV := os.Getenv("VALKEY_SENTINEL_ADDRESS")
		if sentinelCSV == "" {
			return errors.New("VALKEY_USE_SENTINEL is true but VALKEY_SENTINEL_ADDRESS is not set")
		}
		parts := strings.Split(sentinelCSV, ",")
		sentinels := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				sentinels = append(sentinels, p)
			}
		}
		masterName := utils.GetEnvOrDefault("VALKEY_SENTINEL_MASTER_NAME", "mymaster")

		logger.Info("Initializing distributed cache service with sentinel configuration",
			zap.Strings("sentinels", sentinels),
			zap.String("master", masterName))

		vk, err = valkey.NewClient(valkey.ClientOption{
			InitAddress: sentinels,
			Sentinel: valkey.SentinelOption{
				MasterSet: masterName,
			},
		})
	} else {
		host := utils.MustGetEnv("VALKEY_HOST")
		port := utils.GetEnvOrDefault("VALKEY_PORT", "6379")

		logger.Info("Initializing cache service")

		vk, err = valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{fmt.Sprintf("%s:%s", host, port)},
		})
	}

	if err != nil {
		return fmt.Errorf("failed to connect to valkey: %w", err)
	}

	RawClient = vk
	Client = valkeycompat.NewAdapter(vk)
	logger.Info("Cache service initialized successfully")
	return nil
}

func CloseValkey(logger *zap.Logger) {
	if RawClient != nil {
		logger.Info("Closing cache connection")
		RawClient.Close()
	}
}

// IsNil reports a missing key.
func IsNil(err error) bool {
	if err == nil {
		return false
	}
	return valkey.IsValkeyNil(err) || err.Error() == "redis: nil" || err.Error() == "valkey: nil"
}
