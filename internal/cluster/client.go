package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ClientConfig — параметры подключения к Kubernetes API.
type ClientConfig struct {
	// InCluster — использовать service account pod'а.
	InCluster bool

	// Kubeconfig — путь к kubeconfig (вне кластера). Пусто — $KUBECONFIG или ~/.kube/config.
	Kubeconfig string
}

// NewClientset создаёт clientset.
func NewClientset(cfg ClientConfig) (kubernetes.Interface, error) {
	var (
		restConfig *rest.Config
		err        error
	)

	if cfg.InCluster {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("in-cluster config: %w", err)
		}
	} else {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath(cfg.Kubeconfig))
		if err != nil {
			return nil, fmt.Errorf("kubeconfig: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return clientset, nil
}

func kubeconfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}
	if home, _ := os.UserHomeDir(); home != "" {
		return filepath.Join(home, ".kube", "config")
	}
	return ""
}
