package util

import (
	_ "embed"
	"fmt"
	"gopkg.in/yaml.v3"
	"log"
	"os"
	"strconv"
)

const Name = "plumage"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host        string
		SshPort     int    `yaml:"sshPort"`
		HttpPort    int    `yaml:"httpPort"`
		Domain      string `yaml:"domain"`
		FeedApi     string `yaml:"feedApi"`
		AdminKey    string `yaml:"adminKey"`
		SyncMinutes int    `yaml:"syncMinutes"`
		SyncBatch   int    `yaml:"syncBatch"`
		SyncWorkers int    `yaml:"syncWorkers"`
	}
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	var buf []byte
	var err error

	// Try to read from resolved path
	buf, err = os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Printf("Config file not found at %s, using embedded defaults", configPath)
		buf = embeddedConfig

		// Try to write default config to user config directory
		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644)
			if writeErr != nil {
				log.Printf("Warning: could not write default config to %s: %v", userConfigPath, writeErr)
			} else {
				log.Printf("Created default config file at %s", userConfigPath)
			}
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	envHost := os.Getenv("PLUMAGE_HOST")
	envSshPort := os.Getenv("PLUMAGE_SSHPORT")
	envHttpPort := os.Getenv("PLUMAGE_HTTPPORT")
	envDomain := os.Getenv("PLUMAGE_DOMAIN")
	envFeedApi := os.Getenv("PLUMAGE_FEEDAPI")
	envAdminKey := os.Getenv("PLUMAGE_ADMINKEY")
	envSyncMinutes := os.Getenv("PLUMAGE_SYNCMINUTES")
	envSyncBatch := os.Getenv("PLUMAGE_SYNCBATCH")
	envSyncWorkers := os.Getenv("PLUMAGE_SYNCWORKERS")

	if envHost != "" {
		c.Conf.Host = envHost
	}

	if envSshPort != "" {
		v, err := strconv.Atoi(envSshPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.SshPort = v
	}

	if envHttpPort != "" {
		v, err := strconv.Atoi(envHttpPort)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.HttpPort = v
	}

	if envDomain != "" {
		c.Conf.Domain = envDomain
	}

	if envFeedApi != "" {
		c.Conf.FeedApi = envFeedApi
	}

	if envAdminKey != "" {
		c.Conf.AdminKey = envAdminKey
	}

	if envSyncMinutes != "" {
		v, err := strconv.Atoi(envSyncMinutes)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.SyncMinutes = v
	}

	if envSyncBatch != "" {
		v, err := strconv.Atoi(envSyncBatch)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.SyncBatch = v
	}

	if envSyncWorkers != "" {
		v, err := strconv.Atoi(envSyncWorkers)
		if err != nil {
			fmt.Println(err)
		}
		c.Conf.SyncWorkers = v
	}

	if c.Conf.SyncMinutes <= 0 {
		c.Conf.SyncMinutes = 15
	}

	if c.Conf.SyncBatch <= 0 {
		c.Conf.SyncBatch = 50
	}

	if c.Conf.SyncWorkers <= 0 {
		c.Conf.SyncWorkers = 5
	}

	return c, nil
}
