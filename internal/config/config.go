package config

import (
	"log"
	"os"
)

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	// 夜间模型评估任务的 cron 表达式
	MLCronSpec string
	// 远程推理服务（bert 模型）的地址，空则不启用
	MLEndpoint string

	// 导出文件目录（CSV / XLSX）
	ExportDir string
	// 外部站点别名覆盖文件（JSON，热加载）
	AliasFile string

	// 是否允许 Advanced 渠道尝试无头浏览器渲染
	BrowserEnabled bool
}

func Load() *Config {
	cfg := &Config{
		AppPort:        getEnv("APP_PORT", "9000"),
		PostgresDSN:    getEnv("POSTGRES_DSN", "host=localhost user=mediatrack password=mediatrack dbname=mediatrack port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		MLCronSpec:     getEnv("ML_CRON_SPEC", "0 3 * * *"),
		MLEndpoint:     getEnv("ML_ENDPOINT", ""),
		ExportDir:      getEnv("EXPORT_DIR", "var/exports"),
		AliasFile:      getEnv("ALIAS_FILE", "var/aliases_extra.json"),
		BrowserEnabled: getEnv("BROWSER_ENABLED", "1") != "0",
	}

	log.Printf("config loaded: port=%s ml_cron=%s export_dir=%s", cfg.AppPort, cfg.MLCronSpec, cfg.ExportDir)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
