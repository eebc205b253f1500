package util

import (
	"os"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to the upper-cased flag name to form its variable.
const EnvPrefix = "UE_"

// SetFlagsFromEnvVars reads and updates persistent flag values from the
// systemd credentials directory or from UE_ prefixed environment variables.
func SetFlagsFromEnvVars(cmd *cobra.Command) {
	credsDir, present := os.LookupEnv("CREDENTIALS_DIRECTORY")

	flags := cmd.PersistentFlags()
	flags.VisitAll(func(f *pflag.Flag) {
		name := flagNameToUpper(f.Name)

		if present {
			data, err := os.ReadFile(path.Join(credsDir, name))
			if err == nil {
				if err := flags.Set(f.Name, strings.TrimSuffix(string(data), "\n")); err != nil {
					log.Infof("unable to configure flag %s using credential %s, err: %v", f.Name, name, err)
				} else {
					return
				}
			}
		}

		// E.g. LOG_LEVEL -> UE_LOG_LEVEL
		envName := EnvPrefix + name
		if value, ok := os.LookupEnv(envName); ok {
			if err := flags.Set(f.Name, value); err != nil {
				log.Infof("unable to configure flag %s using variable %s, err: %v", f.Name, envName, err)
			}
		}
	})
}

// flagNameToUpper converts a flag name to its corresponding base env name
// replacing dashes by underscores and making the result uppercase
// E.g. device-policy -> DEVICE_POLICY
func flagNameToUpper(cmdFlag string) string {
	return strings.ToUpper(strings.ReplaceAll(cmdFlag, "-", "_"))
}
