// Kernel scheduler configuration.

// The configuration is loaded from a YAML file, with the following
// structure:
//
//  kernel_config:
//    shutdown_max_wait: 5s
//    log_config:
//      ...
//    policy_config:
//      ...
//
// The "kernel_config" section maps to the KernelConfig structure defined in
// this package.

package schedcore

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/huandu/go-clone"
	"gopkg.in/yaml.v3"
)

const (
	KERNEL_CONFIG_SECTION_NAME = "kernel_config"

	KERNEL_CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT = 5 * time.Second
)

type KernelConfig struct {
	// How long to wait for a graceful shutdown of all CPU loops. A negative
	// value signifies indefinite wait and 0 stands for no wait at all (exit
	// abruptly).
	ShutdownMaxWait time.Duration `yaml:"shutdown_max_wait"`

	// Component configuration:
	LoggerConfig *LoggerConfig   `yaml:"log_config"`
	PolicyConfig *PolicyConfig   `yaml:"policy_config"`
}

func DefaultKernelConfig() *KernelConfig {
	return &KernelConfig{
		ShutdownMaxWait: KERNEL_CONFIG_SHUTDOWN_MAX_WAIT_DEFAULT,
		LoggerConfig:    DefaultLoggerConfig(),
		PolicyConfig:    DefaultPolicyConfig(),
	}
}

// LoadConfig loads the configuration from the specified YAML file (or
// buffer, for testing). An error is returned if the configuration could not
// be loaded or parsed; a missing "kernel_config" section is not an error,
// the defaults are used instead.
func LoadConfig(cfgFile string, buf []byte) (*KernelConfig, error) {
	if buf == nil {
		// Normal case, buf is pre-populated only for testing.
		f, err := os.Open(cfgFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		buf, err = io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
		}
	}

	docNode := yaml.Node{}
	if err := yaml.Unmarshal(buf, &docNode); err != nil {
		return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
	}

	kernelConfig := DefaultKernelConfig()
	if docNode.Kind == yaml.DocumentNode && len(docNode.Content) > 0 {
		rootNode := docNode.Content[0]
		if rootNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("file: %q: invalid YAML root node %q", cfgFile, rootNode.Tag)
		}
		for i := 0; i+1 < len(rootNode.Content); i += 2 {
			keyNode, valNode := rootNode.Content[i], rootNode.Content[i+1]
			if keyNode.Value != KERNEL_CONFIG_SECTION_NAME {
				continue
			}
			if err := valNode.Decode(kernelConfig); err != nil {
				return nil, fmt.Errorf("file: %q: %v", cfgFile, err)
			}
		}
	}

	return kernelConfig, nil
}

// CloneKernelConfig returns a deep copy. NewKernel uses it so a caller
// reusing the same *KernelConfig across several kernels can't have one
// kernel's runtime changes leak into another's.
func CloneKernelConfig(cfg *KernelConfig) *KernelConfig {
	return clone.Clone(cfg).(*KernelConfig)
}
