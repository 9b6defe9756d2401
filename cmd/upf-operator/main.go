package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/charmed-5g/upf-operator/pkg/config"
	upfcontroller "github.com/charmed-5g/upf-operator/pkg/controller/upf"
	"github.com/charmed-5g/upf-operator/pkg/hook"
	"github.com/charmed-5g/upf-operator/pkg/kube"
	"github.com/charmed-5g/upf-operator/pkg/lifecycle"
	"github.com/charmed-5g/upf-operator/pkg/monitoring"
	"github.com/charmed-5g/upf-operator/pkg/workload"
)

// Version information (set via ldflags during build)
var Version = "dev"

// exitRequeue asks the event-delivery loop to re-deliver the current event
// later unchanged.
const exitRequeue = 64

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "upf-operator",
	Short:   "Lifecycle operator for the charmed 5G UPF workload",
	Version: Version,
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch [event]",
	Short: "Handle one lifecycle event and exit",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath := os.Getenv("JUJU_DISPATCH_PATH")
		if len(args) == 1 {
			hookPath = args[0]
		}
		kind, err := lifecycle.KindFromHook(hookPath)
		if err != nil {
			return err
		}

		ctrl.SetLogger(zap.New(zap.UseDevMode(false)))
		logger := ctrl.Log.WithName("upf-operator").WithValues("event", string(kind))

		env, err := hook.EnvironmentFromProcess()
		if err != nil {
			return err
		}

		tool := hook.NewTool(hook.ExecRunner{})
		ctx := context.Background()
		rawConfig, err := tool.ConfigGet(ctx)
		if err != nil {
			return err
		}
		cfg, err := config.Parse(rawConfig)
		if err != nil {
			return err
		}

		k8sClient, err := client.New(ctrl.GetConfigOrDie(), client.Options{Scheme: scheme})
		if err != nil {
			return fmt.Errorf("failed to create cluster client: %w", err)
		}

		containers := map[string]workload.Client{}
		for _, name := range []string{
			upfcontroller.BessdContainerName,
			upfcontroller.RoutectlContainerName,
			upfcontroller.WebContainerName,
			upfcontroller.PFCPAgentContainerName,
		} {
			gateway, err := workload.NewPebble(workload.SocketPath(name))
			if err != nil {
				return err
			}
			containers[name] = gateway
		}

		reconciler := &upfcontroller.UPFReconciler{
			Kube:       kube.New(k8sClient, env.ModelName, logger.WithName("kube")),
			Containers: containers,
			Hook:       tool,
			Env:        env,
			Config:     cfg,
			Logger:     logger,
		}

		ctx, span := monitoring.StartHookSpan(ctx, string(kind), env.ApplicationName, env.ModelName)
		result, err := reconciler.Dispatcher().Dispatch(ctx, kind)
		monitoring.RecordSpanError(span, err)
		span.End()
		if err != nil {
			logger.Error(err, "event handling failed")
			os.Exit(1)
		}
		logger.Info("event handled", "result", result.String())
		if result == lifecycle.WaitRetryable {
			os.Exit(exitRequeue)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}
