package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValidInDevelopment(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "Europe/Moscow", cfg.App.Location.String())
	assert.Equal(t, 30*time.Minute, cfg.Reminder.Interval)
	assert.Equal(t, 48*time.Hour, cfg.Reminder.Horizon)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifier.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[app]
timezone = "Asia/Almaty"

[reminder]
interval = "15m"
channel = "sms"
concurrency = 4

[sms]
url = "https://sms.example.com/send"
api_key = "secret"

[kafka]
enabled = true
brokers = ["kafka-1:9092"]
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REMINDER_CONCURRENCY", "8")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())
	assert.Equal(t, 15*time.Minute, cfg.Reminder.Interval)
	assert.Equal(t, "sms", cfg.Reminder.Channel)
	assert.Equal(t, 8, cfg.Reminder.Concurrency)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "salon.notifications", cfg.Kafka.Topic)
}

func TestLoadFile_RejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[reminder]\nintervall = \"1m\"\n"), 0o600))

	err := Default().LoadFile(path)
	assert.ErrorContains(t, err, "reminder.intervall")
}

func TestLoadFile_Missing(t *testing.T) {
	err := Default().LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.App.Environment = EnvProduction
	cfg.App.Timezone = "Mars/Olympus"
	cfg.Reminder.Channel = "pigeon"
	cfg.Reminder.Concurrency = 0
	cfg.HTTP.Port = 70000

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"APP_TIMEZONE",
		"DATABASE_URL is required",
		"TELEGRAM_BOT_TOKEN is required",
		"REMINDER_CHANNEL",
		"REMINDER_CONCURRENCY",
		"HTTP_PORT",
		"ADMIN_API_KEY_HASHES",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestValidate_CronReplacesInterval(t *testing.T) {
	cfg := Default()
	cfg.Reminder.Interval = 0
	assert.ErrorContains(t, cfg.Validate(), "REMINDER_INTERVAL")

	cfg.Reminder.Cron = "*/30 * * * *"
	assert.NoError(t, cfg.Validate())
}

func TestEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("X_INT", "many")
	t.Setenv("X_BOOL", "perhaps")
	t.Setenv("X_DUR", "soon")

	assert.Equal(t, 3, getEnvInt("X_INT", 3))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, time.Second, getEnvDuration("X_DUR", time.Second))
	assert.Equal(t, []string{"a"}, getEnvStringSlice("X_UNSET", []string{"a"}))
}
