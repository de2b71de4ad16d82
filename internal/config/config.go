package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config содержит настройки для сервера и клиента.
type Config struct {
	Host         string `json:"host" yaml:"host"`                   // адрес прослушивания (пусто: все интерфейсы)
	Port         int    `json:"port" yaml:"port"`                   // начальный порт HTTP-сервера (например, 5001)
	PortAttempts int    `json:"port_attempts" yaml:"port_attempts"` // сколько следующих портов пробовать при конфликте
	WSPath       string `json:"ws_path" yaml:"ws_path"`             // путь WebSocket (например, "/socket.io/")
	Production   bool   `json:"production" yaml:"production"`       // раздавать ли статические файлы клиента
	StaticDir    string `json:"static_dir" yaml:"static_dir"`       // каталог собранного клиента

	HistoryCapacity  int `json:"history_capacity" yaml:"history_capacity"`   // сколько последних обновлений хранить
	SubscriberBuffer int `json:"subscriber_buffer" yaml:"subscriber_buffer"` // буфер канала одного подписчика

	LogLevel  string `json:"log_level" yaml:"log_level"`   // уровень логирования (например, "info")
	LogFormat string `json:"log_format" yaml:"log_format"` // text, json или auto
	LogFile   string `json:"log_file" yaml:"log_file"`     // файл лога с ротацией (пусто: stdout)

	DBPath            string   `json:"db_path" yaml:"db_path"`                       // путь к SQLite-журналу клиента (пусто: без журнала)
	ClientServerURL   string   `json:"client_server_url" yaml:"client_server_url"`   // URL для подключения клиента (например, "ws://localhost:5001/socket.io/")
	APIURL            string   `json:"api_url" yaml:"api_url"`                       // базовый HTTP URL сервера
	ReconnectDelay    Duration `json:"reconnect_delay" yaml:"reconnect_delay"`       // пауза перед переподключением
	KeepaliveInterval Duration `json:"keepalive_interval" yaml:"keepalive_interval"` // период отправки heartbeat
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		Port:              5001,
		PortAttempts:      10,
		WSPath:            "/socket.io/",
		StaticDir:         "client/build",
		HistoryCapacity:   100,
		SubscriberBuffer:  64,
		LogLevel:          "info",
		LogFormat:         "auto",
		ClientServerURL:   "ws://localhost:5001/socket.io/",
		APIURL:            "http://localhost:5001",
		ReconnectDelay:    Duration(5 * time.Second),
		KeepaliveInterval: Duration(30 * time.Second),
	}
}

// LoadConfig загружает конфигурацию из указанного файла (JSON или YAML по расширению)
// поверх значений по умолчанию и применяет переменные окружения.
// Пустой путь означает «только значения по умолчанию и окружение».
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(f).Decode(c); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if err := json.NewDecoder(f).Decode(c); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv переопределяет поля значениями переменных окружения.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v, ok := lookup("HOST"); ok {
		c.Host = v
	}
	for _, key := range []string{"ENVIRONMENT", "NODE_ENV"} {
		if v, ok := lookup(key); ok && v == "production" {
			c.Production = true
		}
	}
	if v, ok := lookup("STATIC_DIR"); ok && v != "" {
		c.StaticDir = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok && v != "" {
		c.LogFormat = v
	}
	if v, ok := lookup("LOG_FILE"); ok {
		c.LogFile = v
	}
	if v, ok := lookup("SERVER_URL"); ok && v != "" {
		c.ClientServerURL = v
	}
	if v, ok := lookup("API_URL"); ok && v != "" {
		c.APIURL = v
	}
}

// Validate проверяет допустимость значений.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.PortAttempts < 1 {
		return fmt.Errorf("port_attempts must be at least 1")
	}
	if !strings.HasPrefix(c.WSPath, "/") {
		return fmt.Errorf("ws_path must start with /: %q", c.WSPath)
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("history_capacity must be positive")
	}
	if c.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber_buffer must be positive")
	}
	if c.ReconnectDelay <= 0 || c.KeepaliveInterval <= 0 {
		return fmt.Errorf("reconnect_delay and keepalive_interval must be positive")
	}
	return nil
}

// Addr возвращает адрес прослушивания для указанного порта.
func (c *Config) Addr(port int) string {
	return c.Host + ":" + strconv.Itoa(port)
}

// Duration хранит time.Duration, записываемую в файле строкой вида "5s".
type Duration time.Duration

// Std возвращает значение как time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n int64
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("duration must be a string or nanoseconds: %s", b)
		}
		*d = Duration(n)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}
