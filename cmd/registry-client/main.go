package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/ruteri/data-exchange-registry/api/clients"
	"github.com/ruteri/data-exchange-registry/cmd/flags"
	"github.com/ruteri/data-exchange-registry/cryptoutils"
	"github.com/ruteri/data-exchange-registry/interfaces"
	"github.com/urfave/cli/v2"
)

var flagRequestID = &cli.StringFlag{
	Name:  "id",
	Usage: "request id",
}

const usage = `Talk to a data exchange registry server.

Mutating commands are signed with --key (or REGISTRY_KEY). Use keygen to
create one; the printed identity is what the owner grants roles to.`

func main() {
	app := &cli.App{
		Name:  "registry-client",
		Usage: usage,
		Flags: flags.ClientFlags,
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "generate a signing key and print its identity",
				Action: func(cCtx *cli.Context) error {
					key, hexKey, err := cryptoutils.GenerateSigningKey()
					if err != nil {
						return err
					}
					return printJSON(map[string]string{
						"key":      hexKey,
						"identity": cryptoutils.SigningIdentity(key).String(),
					})
				},
			},
			{
				Name:  "init",
				Usage: "initialize the registry with the caller as owner",
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					owner, err := c.Init(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(map[string]string{"owner": owner.String()})
				}),
			},
			{
				Name:      "add-requesters",
				Usage:     "grant the requester role (owner only)",
				ArgsUsage: "<identity>...",
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					if cCtx.NArg() == 0 {
						return errors.New("at least one identity is required")
					}
					return c.AddRequesters(cCtx.Context, cCtx.Args().Slice())
				}),
			},
			{
				Name:      "add-providers",
				Usage:     "grant the provider role (owner only)",
				ArgsUsage: "<identity>...",
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					if cCtx.NArg() == 0 {
						return errors.New("at least one identity is required")
					}
					return c.AddProviders(cCtx.Context, cCtx.Args().Slice())
				}),
			},
			{
				Name:  "create-request",
				Usage: "create or replace a data request (requesters only)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "request id, a random uuid when omitted"},
					&cli.StringFlag{Name: "uri", Required: true, Usage: "resource to fetch"},
					&cli.StringFlag{Name: "json-path", Usage: "value to extract, e.g. $.ethereum.usd"},
					&cli.Uint64Flag{Name: "period", Usage: "refresh interval in seconds"},
				},
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					id := cCtx.String("id")
					if id == "" {
						id = uuid.NewString()
					}
					var period *uint64
					if cCtx.IsSet("period") {
						period = interfaces.NewPeriod(cCtx.Uint64("period"))
					}

					req, err := c.CreateRequest(cCtx.Context, id, cCtx.String("uri"), cCtx.String("json-path"), period)
					if err != nil {
						return err
					}
					return printJSON(req)
				}),
			},
			{
				Name:  "provide",
				Usage: "submit a response (providers only)",
				Flags: []cli.Flag{
					requiredIDFlag(),
					&cli.StringFlag{Name: "result", Required: true, Usage: "result value"},
				},
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					resp, err := c.ProvideData(cCtx.Context, cCtx.String("id"), cCtx.String("result"))
					if err != nil {
						return err
					}
					return printJSON(resp)
				}),
			},
			{
				Name:  "get-response",
				Usage: "print the latest response for a request",
				Flags: []cli.Flag{requiredIDFlag()},
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					resp, err := c.GetDataResponse(cCtx.Context, cCtx.String("id"))
					if err != nil {
						return err
					}
					return printJSON(resp)
				}),
			},
			{
				Name:  "get-request",
				Usage: "print a single request",
				Flags: []cli.Flag{requiredIDFlag()},
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					req, err := c.GetRequest(cCtx.Context, cCtx.String("id"))
					if err != nil {
						return err
					}
					return printJSON(req)
				}),
			},
			{
				Name:  "list-requests",
				Usage: "print all requests",
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					reqs, err := c.GetAllRequests(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(reqs)
				}),
			},
			{
				Name:  "members",
				Usage: "print the owner, requesters and providers",
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					members, err := c.Members(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(members)
				}),
			},
			{
				Name:  "split-state-key",
				Usage: "split a state key into Shamir shares for registry-server --state-key-share",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "state-key", Usage: "hex key to split, a random key when omitted"},
					&cli.IntFlag{Name: "parts", Value: 5, Usage: "number of shares"},
					&cli.IntFlag{Name: "threshold", Value: 3, Usage: "shares needed to reconstruct"},
				},
				Action: splitStateKey,
			},
			{
				Name:  "unseal-status",
				Usage: "print the unseal progress of a sealed server (--server-addr is its unseal address)",
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					status, err := c.UnsealStatus(cCtx.Context)
					if err != nil {
						return err
					}
					return printJSON(status)
				}),
			},
			{
				Name:  "submit-share",
				Usage: "submit this admin's state key share to a sealed server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "share", Required: true, Usage: "hex-encoded share from split-state-key"},
				},
				Action: withClient(func(cCtx *cli.Context, c *clients.RegistryClient) error {
					share, err := hex.DecodeString(cCtx.String("share"))
					if err != nil {
						return fmt.Errorf("invalid share: %w", err)
					}
					status, err := c.SubmitUnsealShare(cCtx.Context, share)
					if err != nil {
						return err
					}
					return printJSON(status)
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func requiredIDFlag() *cli.StringFlag {
	f := *flagRequestID
	f.Required = true
	return &f
}

func withClient(fn func(*cli.Context, *clients.RegistryClient) error) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		c, err := flags.RegistryClientFromFlags(cCtx)
		if err != nil {
			return err
		}
		return fn(cCtx, c)
	}
}

func splitStateKey(cCtx *cli.Context) error {
	var (
		key       cryptoutils.StateKey
		generated bool
	)
	if hexKey := cCtx.String("state-key"); hexKey != "" {
		var err error
		if key, err = cryptoutils.StateKeyFromHex(hexKey); err != nil {
			return err
		}
	} else {
		if _, err := rand.Read(key[:]); err != nil {
			return fmt.Errorf("could not generate state key: %w", err)
		}
		generated = true
	}

	shares, err := cryptoutils.SplitStateKey(key, cCtx.Int("parts"), cCtx.Int("threshold"))
	if err != nil {
		return err
	}

	out := struct {
		Key       string   `json:"key,omitempty"`
		Threshold int      `json:"threshold"`
		Shares    []string `json:"shares"`
	}{Threshold: cCtx.Int("threshold")}
	if generated {
		out.Key = hex.EncodeToString(key[:])
	}
	for _, share := range shares {
		out.Shares = append(out.Shares, hex.EncodeToString(share))
	}
	return printJSON(out)
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
