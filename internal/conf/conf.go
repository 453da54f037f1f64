package conf

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"

	"sudoq/internal/flog"
)

type Conf struct {
	Role    string    `yaml:"role"`
	Log     Log       `yaml:"log"`
	Crypto  Crypto    `yaml:"crypto"`
	Listen  Listen    `yaml:"listen"`
	Tunnel  Tunnel    `yaml:"tunnel"`
	Poll    Poll      `yaml:"poll"`
	Server  Server    `yaml:"server"`
	SOCKS5  []SOCKS5  `yaml:"socks5"`
	Forward []Forward `yaml:"forward"`
}

func LoadFromFile(path string) (*Conf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var conf Conf
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return &conf, err
	}
	return finish(&conf)
}

// Load parses a configuration document held in memory. Used by tests.
func Load(data []byte) (*Conf, error) {
	var conf Conf
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return &conf, err
	}
	return finish(&conf)
}

func finish(conf *Conf) (*Conf, error) {
	conf.applyEnv()

	validRoles := []string{"client", "server"}
	if !slices.Contains(validRoles, conf.Role) {
		return nil, fmt.Errorf("role must be 'client' or 'server'")
	}

	conf.setDefaults()
	if err := conf.validate(); err != nil {
		return conf, err
	}
	return conf, nil
}

// Environment overrides are read once at load time.
func (c *Conf) applyEnv() {
	if v := os.Getenv("SUDOQ_KEY"); v != "" {
		c.Crypto.Key_ = v
	}
	if v := os.Getenv("SUDOQ_CIPHER"); v != "" {
		c.Crypto.Cipher = v
	}
	if v := os.Getenv("SUDOQ_LAYOUT"); v != "" {
		c.Crypto.Layout = v
	}
	if v := os.Getenv("SUDOQ_UPSTREAM"); v != "" {
		c.Tunnel.Upstream.Host = v
	}
}

func (c *Conf) setDefaults() {
	c.Log.setDefaults()
	c.Crypto.setDefaults()
	c.Poll.setDefaults()
	c.Tunnel.setDefaults(c.Role)

	if c.Role == "client" {
		c.Server.setDefaults()
		for i := range c.SOCKS5 {
			c.SOCKS5[i].setDefaults()
		}
		for i := range c.Forward {
			c.Forward[i].setDefaults()
		}
	} else {
		c.Listen.setDefaults()
	}
}

func (c *Conf) validate() error {
	var allErrors []error

	allErrors = append(allErrors, c.Log.validate()...)
	allErrors = append(allErrors, c.Crypto.validate()...)
	allErrors = append(allErrors, c.Poll.validate()...)
	allErrors = append(allErrors, c.Tunnel.validate(c.Role)...)

	if c.Role == "server" {
		allErrors = append(allErrors, c.Listen.validate()...)
	} else {
		allErrors = append(allErrors, c.Server.validate()...)

		if len(c.SOCKS5) == 0 && len(c.Forward) == 0 {
			flog.Warnf("warning: client configured but no SOCKS5 or forward rules found")
		}
		for i := range c.SOCKS5 {
			for _, err := range c.SOCKS5[i].validate() {
				allErrors = append(allErrors, fmt.Errorf("socks5[%d] %v", i, err))
			}
		}
		for i := range c.Forward {
			for _, err := range c.Forward[i].validate() {
				allErrors = append(allErrors, fmt.Errorf("forward[%d] %v", i, err))
			}
		}
		if c.Tunnel.Mode == "pipe" && len(c.Forward) == 0 {
			allErrors = append(allErrors, fmt.Errorf("pipe mode requires at least one forward rule"))
		}
		if c.Tunnel.Mode == "pipe" && len(c.SOCKS5) != 0 {
			allErrors = append(allErrors, fmt.Errorf("socks5 front-ends require mux mode"))
		}
	}
	return writeErr(allErrors)
}

func writeErr(allErrors []error) error {
	if len(allErrors) > 0 {
		var messages []string
		for _, err := range allErrors {
			messages = append(messages, err.Error())
		}
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}
	return nil
}
