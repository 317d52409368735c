/*
Copyright 2025 Bravemoney Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT       = "5080"
	DEFAULT_CACHE_PATH = "bravemoney.db"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Port string `json:"port" envconfig:"BRAVEMONEY_SERVER_PORT"`
}

// RedisConfig points at the remote authoritative document store. An empty DNS
// selects local-only operation; every core operation still works against the
// on-device cache alone.
type RedisConfig struct {
	Dns string `json:"dns" envconfig:"BRAVEMONEY_REDIS_DNS"`
}

// CacheConfig configures the local key-value cache tier.
type CacheConfig struct {
	Path     string `json:"path" envconfig:"BRAVEMONEY_CACHE_PATH"`
	InMemory bool   `json:"in_memory" envconfig:"BRAVEMONEY_CACHE_IN_MEMORY"`
}

// IdentityConfig seeds the static identity provider. Real deployments swap in
// an auth-backed provider; the core only ever reads "current uid, or none".
type IdentityConfig struct {
	UID string `json:"uid" envconfig:"BRAVEMONEY_IDENTITY_UID"`
}

type Configuration struct {
	ProjectName string         `json:"project_name" envconfig:"BRAVEMONEY_PROJECT_NAME"`
	Server      ServerConfig   `json:"server"`
	Redis       RedisConfig    `json:"redis"`
	Cache       CacheConfig    `json:"cache"`
	Identity    IdentityConfig `json:"identity"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("bravemoney", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called bravemoney.json with your config ❌")
	}
	return c, nil
}

// RemoteEnabled reports whether a remote document store is configured.
func (cnf *Configuration) RemoteEnabled() bool {
	return cnf.Redis.Dns != ""
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Bravemoney"
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Cache.Path = strings.TrimSpace(cnf.Cache.Path)

	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Operating in local-only mode.")
	}

	if cnf.Cache.Path == "" && !cnf.Cache.InMemory {
		cnf.Cache.Path = DEFAULT_CACHE_PATH
		log.Printf("Warning: Cache path not specified in config. Setting default path: %s", DEFAULT_CACHE_PATH)
	}

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
