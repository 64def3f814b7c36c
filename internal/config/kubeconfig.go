package config

import (
	"fmt"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
	ctrl "sigs.k8s.io/controller-runtime"
)

const (
	defaultClusterName = "cluster"
	defaultUserName    = "user"
	defaultContextName = "context"
)

// RESTConfig builds the API server credentials. With KubeDefaultUser the usual
// kubeconfig lookup applies (flag, KUBECONFIG, in-cluster, ~/.kube/config);
// otherwise a single-context kubeconfig is assembled from the explicit settings.
func (c Config) RESTConfig() (*rest.Config, error) {
	if c.KubeDefaultUser {
		cfg, err := ctrl.GetConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load default kubeconfig: %w", err)
		}
		if c.InsecureRequests {
			cfg = rest.CopyConfig(cfg)
			cfg.Insecure = true
			cfg.CAData = nil
			cfg.CAFile = ""
		}
		return cfg, nil
	}

	cluster := orDefault(c.ClusterName, defaultClusterName)
	user := orDefault(c.UserName, defaultUserName)
	context := orDefault(c.Context, defaultContextName)

	api := clientcmdapi.NewConfig()
	api.Clusters[cluster] = &clientcmdapi.Cluster{
		Server:                c.ClusterServer,
		InsecureSkipTLSVerify: c.InsecureRequests,
	}
	api.AuthInfos[user] = &clientcmdapi.AuthInfo{Token: c.UserToken}
	api.Contexts[context] = &clientcmdapi.Context{Cluster: cluster, AuthInfo: user}
	api.CurrentContext = context

	cfg, err := clientcmd.NewDefaultClientConfig(*api, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build client config for %s: %w", c.ClusterServer, err)
	}
	return cfg, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
