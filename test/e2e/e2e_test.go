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

package e2e

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/sbahar619/namespace-label-spreader/internal/cache"
	"github.com/sbahar619/namespace-label-spreader/internal/controller"
	"github.com/sbahar619/namespace-label-spreader/internal/gateway"
	"github.com/sbahar619/namespace-label-spreader/test/utils"
)

const spreadKey = "spread.e2e.io/team"

var _ = Describe("Label spreader E2E Tests", func() {
	var (
		k8sClient client.Client
		ctx       context.Context
		cancel    context.CancelFunc
		testNS    string
	)

	labelsOf := func(obj client.Object) func() map[string]string {
		return func() map[string]string {
			if err := k8sClient.Get(ctx, client.ObjectKeyFromObject(obj), obj); err != nil {
				return nil
			}
			return obj.GetLabels()
		}
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		// Use nanoseconds and random number to avoid collisions
		testNS = fmt.Sprintf("e2e-test-%d-%d", time.Now().UnixNano(), rand.Int31())

		By("Setting up Kubernetes clients")
		var err error
		k8sClient, err = utils.GetK8sClient()
		Expect(err).NotTo(HaveOccurred())
		clientset, err := utils.GetClientset()
		Expect(err).NotTo(HaveOccurred())

		By("Creating test namespace with a spread label")
		ns := &corev1.Namespace{
			ObjectMeta: metav1.ObjectMeta{
				Name:   testNS,
				Labels: map[string]string{spreadKey: "platform", "unrelated": "yes"},
			},
		}
		Expect(k8sClient.Create(ctx, ns)).To(Succeed())

		By("Starting the spreader")
		gw := gateway.NewKube(k8sClient, k8sClient, clientset)
		w := controller.NewWatcher(
			gw,
			cache.New(gw, cache.Options{Interval: 30 * time.Second}),
			&controller.LabelReconciler{Resources: gw},
			controller.NewPropagationRule([]string{spreadKey}, []string{"ConfigMap"}),
		)
		go func() {
			defer GinkgoRecover()
			Expect(w.Start(ctx)).To(Succeed())
		}()
		Eventually(func() error { return w.ReadyCheck(nil) }, time.Minute, time.Second).Should(Succeed())
	})

	AfterEach(func() {
		cancel()

		By("Cleaning up test namespace")
		ns := &corev1.Namespace{
			ObjectMeta: metav1.ObjectMeta{
				Name: testNS,
			},
		}
		bg := context.Background()
		err := k8sClient.Delete(bg, ns)
		if err != nil && !errors.IsNotFound(err) {
			Expect(err).NotTo(HaveOccurred())
		}

		Eventually(func() bool {
			checkNS := &corev1.Namespace{}
			err := k8sClient.Get(bg, types.NamespacedName{Name: testNS}, checkNS)
			return errors.IsNotFound(err)
		}, time.Minute, time.Second).Should(BeTrue())
	})

	Context("Spread kinds", func() {
		It("should copy the namespace label onto a ConfigMap", func() {
			By("Creating a ConfigMap with its own label")
			cm := &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{
					Name:      "settings",
					Namespace: testNS,
					Labels:    map[string]string{"owner": "x"},
				},
			}
			Expect(k8sClient.Create(ctx, cm)).To(Succeed())

			By("Recording an event about it")
			Expect(utils.RecordEvent(ctx, k8sClient, cm, "E2E")).To(Succeed())

			By("Checking the label was spread and the existing one kept")
			Eventually(labelsOf(cm), time.Minute, time.Second).Should(And(
				HaveKeyWithValue(spreadKey, "platform"),
				HaveKeyWithValue("owner", "x"),
				Not(HaveKey("unrelated")),
			))
		})

		It("should follow a changed namespace label", func() {
			cm := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: "follow", Namespace: testNS}}
			Expect(k8sClient.Create(ctx, cm)).To(Succeed())
			Expect(utils.RecordEvent(ctx, k8sClient, cm, "E2E")).To(Succeed())
			Eventually(labelsOf(cm), time.Minute, time.Second).Should(HaveKeyWithValue(spreadKey, "platform"))

			By("Relabelling the namespace and waiting for the next cache refresh")
			ns := &corev1.Namespace{}
			Expect(k8sClient.Get(ctx, types.NamespacedName{Name: testNS}, ns)).To(Succeed())
			ns.Labels[spreadKey] = "storage"
			Expect(k8sClient.Update(ctx, ns)).To(Succeed())

			Eventually(func() map[string]string {
				_ = utils.RecordEvent(ctx, k8sClient, cm, "E2E")
				return labelsOf(cm)()
			}, 2*time.Minute, 5*time.Second).Should(HaveKeyWithValue(spreadKey, "storage"))
		})
	})

	Context("Other kinds", func() {
		It("should leave a Secret untouched", func() {
			secret := &corev1.Secret{
				ObjectMeta: metav1.ObjectMeta{Name: "creds", Namespace: testNS},
				StringData: map[string]string{"k": "v"},
			}
			Expect(k8sClient.Create(ctx, secret)).To(Succeed())
			Expect(utils.RecordEvent(ctx, k8sClient, secret, "E2E")).To(Succeed())

			Consistently(labelsOf(secret), 10*time.Second, time.Second).ShouldNot(HaveKey(spreadKey))
		})
	})
})
