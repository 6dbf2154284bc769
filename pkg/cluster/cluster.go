/*
Package cluster backs the GET /cluster endpoint (C10): a best-effort view
of sibling gateway pods when running inside Kubernetes, and a single-node
fallback otherwise. Grounded on the teacher's pkg/k8s/client.go, which
builds a kubernetes.Clientset from the filesystem kubeconfig for batch
deploys; this package instead builds an in-cluster config (the in-pod
counterpart teacher code never needed, since its Deploy is invoked from an
operator's laptop, not from within the cluster) and only ever lists, never
mutates.
*/
package cluster

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// Role mirrors §5's "distribution is optional" stance: every node is a
// peer, there is no elected leader.
const Role = "peer"

// Info is the JSON shape GET /cluster returns.
type Info struct {
	NodeID string   `json:"node_id"`
	Peers  []string `json:"peers"`
	Role   string   `json:"role"`
}

// View discovers cluster membership. NodeID is fixed for the process
// lifetime; Peers is re-queried on every call.
type View struct {
	nodeID    string
	namespace string
	selector  string
	clientset *kubernetes.Clientset
}

// New builds a View. When KUBERNETES_SERVICE_HOST is unset the process is
// not running in a cluster and Peers always reports just this node.
func New(namespace, labelSelector string) *View {
	v := &View{
		nodeID:    uuid.NewString(),
		namespace: namespace,
		selector:  labelSelector,
	}

	if os.Getenv("KUBERNETES_SERVICE_HOST") == "" {
		return v
	}

	cfg, err := rest.InClusterConfig()
	if err != nil {
		log.Warn("cluster: in-cluster config unavailable, falling back to single-node view", "error", err)
		return v
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		log.Warn("cluster: building clientset failed, falling back to single-node view", "error", err)
		return v
	}

	v.clientset = clientset
	return v
}

// Info reports this node's id, its peers (including itself), and its role.
// Any API error degrades to a single-node view rather than failing the
// request — §4.7's /cluster is informational, never load-bearing.
func (v *View) Info(ctx context.Context) Info {
	if v.clientset == nil {
		return Info{NodeID: v.nodeID, Peers: []string{v.nodeID}, Role: Role}
	}

	listCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	pods, err := v.clientset.CoreV1().Pods(v.namespace).List(listCtx, metav1.ListOptions{
		LabelSelector: v.selector,
	})
	if err != nil {
		log.Warn("cluster: listing peer pods failed", "error", err)
		return Info{NodeID: v.nodeID, Peers: []string{v.nodeID}, Role: Role}
	}

	peers := make([]string, 0, len(pods.Items))
	for _, pod := range pods.Items {
		if podReady(&pod) {
			peers = append(peers, pod.Status.PodIP)
		}
	}
	if len(peers) == 0 {
		peers = []string{v.nodeID}
	}

	return Info{NodeID: v.nodeID, Peers: peers, Role: Role}
}

func podReady(pod *corev1.Pod) bool {
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}
