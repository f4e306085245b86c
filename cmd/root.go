package cmd

import (
	"context"
	"io/fs"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tarrence/cray-cli/internal/auth"
	"github.com/tarrence/cray-cli/internal/clierr"
	"github.com/tarrence/cray-cli/internal/cligen"
	"github.com/tarrence/cray-cli/internal/config"
	"github.com/tarrence/cray-cli/internal/crayhttp"
	"github.com/tarrence/cray-cli/internal/logging"
	"github.com/tarrence/cray-cli/internal/modules"
	"github.com/tarrence/cray-cli/internal/output"
	"github.com/tarrence/cray-cli/internal/shim"
	"github.com/tarrence/cray-cli/internal/version"
	"github.com/tarrence/cray-cli/specs"
)

const annotationModule = "cray_module"

// Global option keys. Each resolves flag, then environment, then the active
// profile, then the built-in default.
const (
	keyConfiguration = "configuration"
	keyFormat        = "format"
	keyQuiet         = "quiet"
	keyToken         = "token"
	keyNoPrompt      = "no_prompt"
)

var envBindings = map[string]string{
	keyConfiguration: config.EnvProfile,
	keyFormat:        "CRAY_FORMAT",
	keyQuiet:         "CRAY_QUIET",
	keyToken:         "CRAY_CREDENTIALS",
	keyNoPrompt:      "CRAY_NO_PROMPT",
}

type rootOptions struct {
	Configuration string
	Format        string
	Quiet         bool
	Token         string
	Verbose       int
}

type appState struct {
	opts rootOptions

	configs *config.Store
	tokens  *auth.Store

	fsys      fs.FS
	modules   []modules.Module
	overrides *shim.Registry

	profile *config.Profile
	runtime *cligen.Runtime
}

func (a *appState) initFromFlags(cmd *cobra.Command) error {
	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	flags := cmd.Root().PersistentFlags()
	for _, key := range []string{keyConfiguration, keyFormat, keyQuiet, keyToken} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return err
		}
	}

	name := v.GetString(keyConfiguration)
	if name == "" {
		var err error
		if name, err = a.configs.ActiveProfile(); err != nil {
			return err
		}
	}
	profile, err := a.configs.Load(name)
	if err != nil {
		return err
	}

	fromProfile := map[string]any{}
	if f := profile.Format(); f != "" {
		fromProfile[keyFormat] = f
	}
	if profile.Quiet() {
		fromProfile[keyQuiet] = true
	}
	if err := v.MergeConfigMap(fromProfile); err != nil {
		return err
	}
	v.SetDefault(keyFormat, output.FormatJSON)

	format := v.GetString(keyFormat)
	if err := config.ValidateFormat(format); err != nil {
		return &clierr.UsageError{Option: keyFormat, Msg: err.Error()}
	}

	inv := shim.Invocation{
		Profile:        name,
		Token:          v.GetString(keyToken),
		Format:         format,
		Quiet:          v.GetBool(keyQuiet),
		Verbosity:      a.opts.Verbose,
		NonInteractive: v.GetBool(keyNoPrompt),
	}
	log := logging.New(cmd.ErrOrStderr(), inv.Verbosity)
	log.Debug().Str("profile", name).Str("format", format).Str("config_dir", a.configs.Dir()).Msg("resolved invocation")

	a.profile = profile
	a.runtime = &cligen.Runtime{
		Invocation: inv,
		Hostname:   profile.Hostname(),
		Client: crayhttp.NewClient(crayhttp.ClientOptions{
			UserAgent: version.UserAgent(),
			Tokens:    auth.Source{Store: a.tokens, Profile: name, Override: inv.Token},
			Log:       log,
		}),
		Printer: output.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Options{
			Format: format,
			Quiet:  inv.Quiet,
		}),
		Log: log,
	}
	return nil
}

type appKey struct{}

func appFrom(cmd *cobra.Command) (*appState, error) {
	v := cmd.Context().Value(appKey{})
	if v == nil {
		return nil, errors.New("internal error: app state missing from command context")
	}
	a, ok := v.(*appState)
	if !ok || a.runtime == nil {
		return nil, errors.New("internal error: app state has wrong type")
	}
	return a, nil
}

func NewRootCmd() (*cobra.Command, error) {
	mods, err := modules.Discover(specs.FS)
	if err != nil {
		return nil, err
	}
	configs := config.NewStore(config.DefaultDir())
	app := &appState{
		configs:   configs,
		tokens:    auth.NewStore(configs.TokenDir()),
		fsys:      specs.FS,
		modules:   mods,
		overrides: modules.Overrides(),
	}

	root := &cobra.Command{
		Use:   "cray",
		Short: "Cray system management CLI",
		Long: "Cray system management CLI.\n\n" +
			"Commands under each service are generated from the service's OpenAPI document.\n\n" +
			"Getting started:\n" +
			"  cray init --hostname https://api-gw-service-nmn.local\n" +
			"  cray bos v2 sessions list\n\n" +
			"Examples:\n" +
			"  cray bos v2 sessions create --template-name compute --operation reboot --limit x3000c0s1b0n0\n" +
			"  cray capmc v1 set_power_cap create --nids [1-4] --control node 400 -y\n" +
			"  cray cfs v3 configurations replace example --file config.json\n",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &clierr.UsageError{Msg: "no such command \"" + args[0] + "\""}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.initFromFlags(cmd); err != nil {
				return err
			}
			cmd.SetContext(cligen.WithRuntime(cmd.Context(), app.runtime))
			return nil
		},
	}
	root.SetContext(context.WithValue(context.Background(), appKey{}, app))
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &clierr.UsageError{Msg: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&app.opts.Configuration, keyConfiguration, "", "Configuration profile to use (or set CRAY_CONFIG)")
	pf.StringVar(&app.opts.Format, keyFormat, "", "Output format: json, toml or yaml (or set CRAY_FORMAT)")
	pf.BoolVar(&app.opts.Quiet, keyQuiet, false, "Suppress command output (or set CRAY_QUIET)")
	pf.StringVar(&app.opts.Token, keyToken, "", "Path to a token file to authenticate with (or set CRAY_CREDENTIALS)")
	pf.CountVarP(&app.opts.Verbose, "verbose", "v", "Increase log verbosity; repeat for more")

	root.SetVersionTemplate("{{.Version}}\n")
	root.Version = version.Version()

	// Built-ins
	root.AddCommand(newInitCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newAuthCmd())
	root.AddCommand(newSpecCmd())
	root.AddCommand(newVersionCmd())

	// Generated service commands, built on first use.
	for _, m := range mods {
		root.AddCommand(moduleStub(m))
	}
	return root, nil
}

// moduleStub stands in for a module until the command line names it.
func moduleStub(m modules.Module) *cobra.Command {
	short := m.Short
	if short == "" {
		short = "Commands for the " + m.Name + " service"
	}
	return &cobra.Command{
		Use:                m.Name,
		Short:              short,
		Annotations:        map[string]string{annotationModule: m.Name},
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("internal error: module " + m.Name + " was not loaded")
		},
	}
}

func (a *appState) moduleOptions() modules.Options {
	return modules.Options{Overrides: a.overrides}
}

// loadModuleFor replaces the stub of the module named by args, if any, with
// the module's real command tree. `help` and shell completion requests name
// the module in their first argument.
func loadModuleFor(root *cobra.Command, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			args = args[1:]
		}
	}
	if len(args) == 0 {
		return nil
	}
	found, _, err := root.Find(args)
	if err != nil || found == root {
		return nil
	}
	top := found
	for top.HasParent() && top.Parent() != root {
		top = top.Parent()
	}
	name, ok := top.Annotations[annotationModule]
	if !ok {
		return nil
	}
	app, ok := root.Context().Value(appKey{}).(*appState)
	if !ok {
		return errors.New("internal error: app state missing from root command")
	}
	for _, m := range app.modules {
		if m.Name != name {
			continue
		}
		full, err := m.Command(app.fsys, app.moduleOptions())
		if err != nil {
			return err
		}
		root.RemoveCommand(top)
		root.AddCommand(full)
		return nil
	}
	return nil
}

// Run executes the command line args against root, loading the module the
// command line refers to first.
func Run(root *cobra.Command, args []string) error {
	if err := loadModuleFor(root, args); err != nil {
		return err
	}
	if target, _, err := root.Find(args); err == nil {
		args = cligen.RewriteMultiValueFlags(target, args)
	}
	root.SetArgs(args)
	return root.Execute()
}
