// cmd/creds/main.go
package main

import (
	"encoding/json"
	"fmt"
	"os"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"stead/internal/creds"
)

func main() {
	root := &cobra.Command{
		Use:   "creds",
		Short: "Generate and inspect stead credential bundles",
	}

	var (
		outPath      string
		commonName   string
		organization string
		locality     string
		province     string
		force        bool
	)
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate session tokens and a device CA",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := creds.Generate(creds.CAOptions{
				CommonName:   commonName,
				Organization: organization,
				Locality:     locality,
				State:        province,
			})
			if err != nil {
				return err
			}
			if outPath == "" {
				fmt.Print(f.Render())
				return nil
			}
			if _, err := os.Stat(outPath); err == nil && !force {
				return fmt.Errorf("%s already exists, refusing to overwrite", outPath)
			}
			if err := f.Save(outPath); err != nil {
				return err
			}
			fmt.Printf("credentials written to %s\n", outPath)
			return nil
		},
	}
	generateCmd.Flags().StringVar(&outPath, "out", "", "write the bundle to this file instead of stdout")
	generateCmd.Flags().StringVar(&commonName, "common-name", "", "device CA common name")
	generateCmd.Flags().StringVar(&organization, "organization", "", "device CA organization")
	generateCmd.Flags().StringVar(&locality, "locality", "", "device CA locality")
	generateCmd.Flags().StringVar(&province, "province", "", "device CA state or province")
	generateCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	inspectCmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Summarize a credentials file without printing secrets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := creds.Load(args[0])
			if err != nil {
				return err
			}
			summary := map[string]any{
				"session_public_set": f.SessionPublic != "",
				"session_secret_set": f.SessionSecret != "",
				"device_ca_key_set":  f.DeviceCAKey != "",
				"device_ca_cert_set": f.DeviceCACert != "",
			}
			if f.DeviceCACert != "" {
				claims := jwtv5.MapClaims{}
				if _, _, perr := jwtv5.NewParser().ParseUnverified(f.DeviceCACert, claims); perr == nil {
					if c, ok := claims["certificate"].(map[string]any); ok {
						summary["certificate"] = map[string]any{
							"subject":      c["subject"],
							"serialNumber": c["serialNumber"],
							"notBefore":    c["notBefore"],
							"notAfter":     c["notAfter"],
						}
					}
				}
			}
			out, _ := json.MarshalIndent(summary, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}

	root.AddCommand(generateCmd)
	root.AddCommand(inspectCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
