/*
Copyright 2025.

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

package main

import (
	"flag"
	"os"

	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/kubernetes"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/sbahar619/namespace-label-spreader/internal/cache"
	"github.com/sbahar619/namespace-label-spreader/internal/config"
	"github.com/sbahar619/namespace-label-spreader/internal/controller"
	"github.com/sbahar619/namespace-label-spreader/internal/gateway"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

func main() {
	var configPath string
	var metricsAddr string
	var probeAddr string
	var enableLeaderElection bool
	flag.StringVar(&configPath, "config", config.DefaultFile,
		"Path to the JSON configuration file. Environment variables are used when it does not exist.")
	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for the spreader. "+
			"Enabling this will ensure there is only one active instance patching labels.")
	level := uberzap.NewAtomicLevelAt(zapcore.InfoLevel)
	opts := zap.Options{
		Development: true,
		Level:       level,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	cfg, err := config.Load(configPath, os.LookupEnv)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		setupLog.Error(err, "invalid configuration", "source", cfg.Source)
		os.Exit(1)
	}
	if levelFlagSet(flag.CommandLine) {
		setupLog.Info("--zap-log-level is set, ignoring " + config.EnvLogLevel)
	} else {
		level.SetLevel(cfg.ZapLevel())
	}
	setupLog.Info("loaded configuration", "source", cfg.Source,
		"labels", cfg.SpreadLabels, "kinds", cfg.SpreadKinds, "cacheTime", cfg.CacheTime)

	restConfig, err := cfg.RESTConfig()
	if err != nil {
		setupLog.Error(err, "unable to build client configuration")
		os.Exit(1)
	}

	mgr, err := ctrl.NewManager(restConfig, ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: metricsAddr},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "label-spreader.shahaf.com",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	clientset, err := kubernetes.NewForConfig(mgr.GetConfig())
	if err != nil {
		setupLog.Error(err, "unable to create clientset")
		os.Exit(1)
	}

	gw := gateway.NewKube(mgr.GetAPIReader(), mgr.GetClient(), clientset)
	namespaces := cache.New(gw, cache.Options{Interval: cfg.CacheTime})
	watcher := controller.NewWatcher(gw, namespaces, &controller.LabelReconciler{Resources: gw}, cfg.Rule())
	if err := mgr.Add(watcher); err != nil {
		setupLog.Error(err, "unable to add watcher", "controller", controller.ControllerName)
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", watcher.ReadyCheck); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

// levelFlagSet reports whether --zap-log-level was given, which replaces the
// atomic level that LOG_LEVEL controls.
func levelFlagSet(fs *flag.FlagSet) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "zap-log-level" {
			set = true
		}
	})
	return set
}
