package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/medisync/recordcrypt/api/keyhandler"
	"github.com/medisync/recordcrypt/cmd/flags"
	"github.com/medisync/recordcrypt/fieldcrypt"
	"github.com/medisync/recordcrypt/interfaces"
	"github.com/medisync/recordcrypt/keymanager"
	"github.com/medisync/recordcrypt/storage"
)

var serviceLogFlag = flags.LogServiceFlagFn("recordcrypt")

var passwordFlag = &cli.StringFlag{
	Name:    "password",
	Usage:   "password protecting the private key",
	EnvVars: []string{"RECORDCRYPT_PASSWORD"},
}

var newPasswordFlag = &cli.StringFlag{
	Name:    "new-password",
	Usage:   "new password to wrap the private key under",
	EnvVars: []string{"RECORDCRYPT_NEW_PASSWORD"},
}

var backupPasswordFlag = &cli.StringFlag{
	Name:    "backup-password",
	Usage:   "password protecting the backup blob; independent of the key password",
	EnvVars: []string{"RECORDCRYPT_BACKUP_PASSWORD"},
}

var inFileFlag = &cli.StringFlag{
	Name:  "in",
	Usage: "input file; '-' or empty reads stdin",
}

var outFileFlag = &cli.StringFlag{
	Name:  "out",
	Usage: "output file; empty writes stdout",
}

var fieldSetFlag = &cli.StringFlag{
	Name:  "field-set",
	Value: "generic",
	Usage: "sensitive field set to apply (generic, interview, patient)",
}

var assignIDsFlag = &cli.BoolFlag{
	Name:  "assign-ids",
	Usage: "assign a random id to records that have none before encrypting",
}

var forceFlag = &cli.BoolFlag{
	Name:  "force",
	Usage: "skip the confirmation check",
}

type cliEnv struct {
	manager *keymanager.Manager
	log     *slog.Logger
}

func setupEnv(cCtx *cli.Context) (*cliEnv, error) {
	logger := flags.SetupLogger(cCtx)

	var store interfaces.LocalStore
	if path := cCtx.String(flags.StorePathFlag.Name); path != "" {
		fileStore, err := storage.NewFileStore(path, logger)
		if err != nil {
			return nil, fmt.Errorf("could not open local key store: %w", err)
		}
		store = fileStore
	} else {
		store = storage.NewMemoryStore()
	}

	remote := keyhandler.NewClient(
		cCtx.String(flags.ServerURLFlag.Name),
		interfaces.UserID(cCtx.String(flags.UserIDFlag.Name)),
		cCtx.String(flags.AuthTokenFlag.Name),
		nil,
	)

	return &cliEnv{
		manager: keymanager.New(store, remote, logger),
		log:     logger,
	}, nil
}

func main() {
	app := &cli.App{
		Name:  "recordcrypt",
		Usage: "Manage encryption keys and encrypt record fields",
		Flags: append([]cli.Flag{
			flags.ServerURLFlag,
			flags.UserIDFlag,
			flags.AuthTokenFlag,
			flags.StorePathFlag,
			serviceLogFlag,
		}, flags.CommonFlags...),
		Commands: []*cli.Command{
			{
				Name:  "generate",
				Usage: "Generate a keypair, wrap it under the password and store it",
				Flags: []cli.Flag{passwordFlag},
				Action: func(cCtx *cli.Context) error {
					env, err := setupEnv(cCtx)
					if err != nil {
						return err
					}

					keyPair, err := env.manager.GenerateAndStore(cCtx.Context, cCtx.String(passwordFlag.Name))
					if err != nil {
						return err
					}
					fmt.Println(keyPair.Fingerprint)
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "Print local key status and server key state",
				Action: func(cCtx *cli.Context) error {
					env, err := setupEnv(cCtx)
					if err != nil {
						return err
					}

					status := env.manager.Status(cCtx.Context)
					serverState, err := env.manager.CheckServerKey(cCtx.Context)
					server := serverState.String()
					if err != nil {
						server = fmt.Sprintf("unreachable (%v)", err)
					}

					return printJSON(os.Stdout, map[string]any{
						"local":  status,
						"server": server,
					})
				},
			},
			{
				Name:  "change-password",
				Usage: "Re-wrap the private key under a new password",
				Flags: []cli.Flag{passwordFlag, newPasswordFlag},
				Action: func(cCtx *cli.Context) error {
					env, err := setupEnv(cCtx)
					if err != nil {
						return err
					}
					return env.manager.ChangePassword(cCtx.Context,
						cCtx.String(passwordFlag.Name),
						cCtx.String(newPasswordFlag.Name))
				},
			},
			{
				Name:  "sync",
				Usage: "Synchronize the wrapped key record with the server",
				Subcommands: []*cli.Command{
					{
						Name:  "push",
						Usage: "Upload the local key record to the server",
						Action: func(cCtx *cli.Context) error {
							env, err := setupEnv(cCtx)
							if err != nil {
								return err
							}
							return env.manager.SyncToServer(cCtx.Context)
						},
					},
					{
						Name:  "pull",
						Usage: "Download the server key record, verifying the password first",
						Flags: []cli.Flag{passwordFlag},
						Action: func(cCtx *cli.Context) error {
							env, err := setupEnv(cCtx)
							if err != nil {
								return err
							}
							return env.manager.SyncFromServer(cCtx.Context, cCtx.String(passwordFlag.Name))
						},
					},
				},
			},
			{
				Name:  "export-backup",
				Usage: "Export the key record as a password-protected backup blob",
				Flags: []cli.Flag{backupPasswordFlag, outFileFlag},
				Action: func(cCtx *cli.Context) error {
					env, err := setupEnv(cCtx)
					if err != nil {
						return err
					}

					blob, err := env.manager.ExportBackup(cCtx.Context, cCtx.String(backupPasswordFlag.Name))
					if err != nil {
						return err
					}
					return writeOutput(cCtx.String(outFileFlag.Name), []byte(blob+"\n"))
				},
			},
			{
				Name:  "import-backup",
				Usage: "Restore the key record from a backup blob",
				Flags: []cli.Flag{backupPasswordFlag, inFileFlag},
				Action: func(cCtx *cli.Context) error {
					env, err := setupEnv(cCtx)
					if err != nil {
						return err
					}

					blob, err := readInput(cCtx.String(inFileFlag.Name))
					if err != nil {
						return err
					}
					return env.manager.ImportBackup(cCtx.Context, string(blob), cCtx.String(backupPasswordFlag.Name))
				},
			},
			{
				Name:  "delete",
				Usage: "Delete the keypair locally and on the server",
				Flags: []cli.Flag{forceFlag},
				Action: func(cCtx *cli.Context) error {
					if !cCtx.Bool(forceFlag.Name) {
						return fmt.Errorf("deleting the keypair makes encrypted records unreadable, re-run with --force")
					}

					env, err := setupEnv(cCtx)
					if err != nil {
						return err
					}
					return env.manager.DeleteKeyPair(cCtx.Context)
				},
			},
			{
				Name:  "encrypt",
				Usage: "Encrypt the sensitive fields of JSON records",
				Flags: []cli.Flag{inFileFlag, outFileFlag, fieldSetFlag, assignIDsFlag},
				Action: func(cCtx *cli.Context) error {
					env, err := setupEnv(cCtx)
					if err != nil {
						return err
					}
					return transformRecords(cCtx, env, false)
				},
			},
			{
				Name:  "decrypt",
				Usage: "Decrypt the sensitive fields of JSON records",
				Flags: []cli.Flag{passwordFlag, inFileFlag, outFileFlag, fieldSetFlag},
				Action: func(cCtx *cli.Context) error {
					env, err := setupEnv(cCtx)
					if err != nil {
						return err
					}
					if err := env.manager.Unlock(cCtx.Context, cCtx.String(passwordFlag.Name)); err != nil {
						return err
					}
					defer env.manager.Lock()
					return transformRecords(cCtx, env, true)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// transformRecords reads one JSON object or an array of objects, runs the
// record service over it and writes the result.
func transformRecords(cCtx *cli.Context, env *cliEnv, decrypt bool) error {
	fieldSet, ok := interfaces.FieldSetByName(cCtx.String(fieldSetFlag.Name))
	if !ok {
		return fmt.Errorf("unknown field set: %s", cCtx.String(fieldSetFlag.Name))
	}

	input, err := readInput(cCtx.String(inFileFlag.Name))
	if err != nil {
		return err
	}

	records, single, err := parseRecords(input)
	if err != nil {
		return err
	}

	if !decrypt && cCtx.Bool(assignIDsFlag.Name) {
		for _, record := range records {
			if _, ok := record["id"]; !ok {
				record["id"] = uuid.Must(uuid.NewRandom()).String()
			}
		}
	}

	service := fieldcrypt.NewService(env.manager, env.log)
	var result []map[string]any
	if decrypt {
		result, err = service.DecryptBatch(cCtx.Context, records, fieldSet)
	} else {
		result, err = service.EncryptBatch(cCtx.Context, records, fieldSet)
	}
	if err != nil {
		return err
	}

	var out any = result
	if single {
		out = result[0]
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return writeOutput(cCtx.String(outFileFlag.Name), append(encoded, '\n'))
}

func parseRecords(input []byte) (records []map[string]any, single bool, err error) {
	var one map[string]any
	if err := json.Unmarshal(input, &one); err == nil {
		return []map[string]any{one}, true, nil
	}
	if err := json.Unmarshal(input, &records); err != nil {
		return nil, false, fmt.Errorf("input is neither a JSON object nor an array of objects: %w", err)
	}
	return records, false, nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func printJSON(w io.Writer, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(encoded))
	return err
}
