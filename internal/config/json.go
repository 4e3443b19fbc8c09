package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// jsonConfig mirrors Config with Duration fields that accept human-readable
// strings like "15s" in the JSON file.
type jsonConfig struct {
	Adapter struct {
		BaseURL        string   `json:"base_url"`
		RequestTimeout Duration `json:"request_timeout"`
	} `json:"adapter,omitempty"`

	Storage struct {
		DB struct {
			DSN string `json:"dsn"`
		} `json:"db,omitempty"`

		Secure struct {
			Path      string `json:"path"`
			DeviceKey string `json:"device_key"`
		} `json:"secure,omitempty"`
	} `json:"storage,omitempty"`

	Sync struct {
		RetryCeiling int      `json:"retry_ceiling"`
		BackoffBase  Duration `json:"backoff_base"`
		BackoffCap   Duration `json:"backoff_cap"`
	} `json:"sync,omitempty"`
}

func parseJSON(jsonFilePath string) (*Config, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg jsonConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &Config{
		Adapter: Adapter{
			BaseURL:        jsonCfg.Adapter.BaseURL,
			RequestTimeout: time.Duration(jsonCfg.Adapter.RequestTimeout),
		},
		Storage: Storage{
			DB: DB{
				DSN: jsonCfg.Storage.DB.DSN,
			},
			Secure: Secure{
				Path:      jsonCfg.Storage.Secure.Path,
				DeviceKey: jsonCfg.Storage.Secure.DeviceKey,
			},
		},
		Sync: Sync{
			RetryCeiling: jsonCfg.Sync.RetryCeiling,
			BackoffBase:  time.Duration(jsonCfg.Sync.BackoffBase),
			BackoffCap:   time.Duration(jsonCfg.Sync.BackoffCap),
		},
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling from strings like "1h", "30s"
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return json.Unmarshal(b, (*time.Duration)(d))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
