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

package controller

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/sbahar619/namespace-label-spreader/internal/gateway"
)

// fakeResources keeps a single object and records every call.
type fakeResources struct {
	mu        sync.Mutex
	obj       *unstructured.Unstructured
	getErr    error
	updateErr error
	gets      int
	updates   []map[string]string
}

func newFakeResources(labels map[string]string) *fakeResources {
	obj := &unstructured.Unstructured{}
	obj.SetAPIVersion("apps/v1")
	obj.SetKind("Deployment")
	obj.SetNamespace("ns1")
	obj.SetName("web")
	if labels != nil {
		obj.SetLabels(labels)
	}
	return &fakeResources{obj: obj}
}

func (f *fakeResources) GetResource(_ context.Context, _ gateway.ResourceRef) (*unstructured.Unstructured, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.obj.DeepCopy(), nil
}

func (f *fakeResources) UpdateResource(_ context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, obj.GetLabels())
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.obj = obj.DeepCopy()
	return obj, nil
}

func (f *fakeResources) labels() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.obj.GetLabels()
}

var _ = Describe("LabelReconciler", func() {
	var (
		ctx       context.Context
		resources *fakeResources
		r         *LabelReconciler
		ref       gateway.ResourceRef
	)

	BeforeEach(func() {
		ctx = context.Background()
		ref = gateway.ResourceRef{APIVersion: "apps/v1", Kind: "Deployment", Namespace: "ns1", Name: "web"}
	})

	JustBeforeEach(func() {
		r = &LabelReconciler{Resources: resources}
	})

	Context("when labels already match", func() {
		BeforeEach(func() {
			resources = newFakeResources(map[string]string{"team": "a", "owner": "x"})
		})

		It("should never update, no matter how often it runs", func() {
			for i := 0; i < 5; i++ {
				changed, err := r.Reconcile(ctx, ref, map[string]string{"team": "a"})
				Expect(err).NotTo(HaveOccurred())
				Expect(changed).To(BeFalse())
			}
			Expect(resources.gets).To(Equal(5))
			Expect(resources.updates).To(BeEmpty())
		})
	})

	Context("when a spread label is missing", func() {
		BeforeEach(func() {
			resources = newFakeResources(map[string]string{"owner": "x"})
		})

		It("should add it and keep unrelated labels", func() {
			changed, err := r.Reconcile(ctx, ref, map[string]string{"team": "a"})
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())
			Expect(resources.updates).To(HaveLen(1))
			Expect(resources.labels()).To(Equal(map[string]string{"owner": "x", "team": "a"}))
		})

		It("should be idempotent after the first update", func() {
			_, err := r.Reconcile(ctx, ref, map[string]string{"team": "a"})
			Expect(err).NotTo(HaveOccurred())

			changed, err := r.Reconcile(ctx, ref, map[string]string{"team": "a"})
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())
			Expect(resources.updates).To(HaveLen(1))
		})
	})

	Context("when a spread label has another value", func() {
		BeforeEach(func() {
			resources = newFakeResources(map[string]string{"team": "old", "env": "prod"})
		})

		It("should overwrite only the differing key", func() {
			changed, err := r.Reconcile(ctx, ref, map[string]string{"team": "new", "env": "prod"})
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())
			Expect(resources.labels()).To(Equal(map[string]string{"team": "new", "env": "prod"}))
		})
	})

	Context("when the object has no labels at all", func() {
		BeforeEach(func() {
			resources = newFakeResources(nil)
		})

		It("should create the label map", func() {
			changed, err := r.Reconcile(ctx, ref, map[string]string{"spread/x": "1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeTrue())
			Expect(resources.updates).To(Equal([]map[string]string{{"spread/x": "1"}}))
		})
	})

	Context("Error Handling", func() {
		BeforeEach(func() {
			resources = newFakeResources(map[string]string{})
		})

		It("should return fetch errors without updating", func() {
			resources.getErr = apierrors.NewNotFound(schema.GroupResource{Group: "apps", Resource: "deployments"}, "web")

			changed, err := r.Reconcile(ctx, ref, map[string]string{"team": "a"})
			Expect(apierrors.IsNotFound(err)).To(BeTrue())
			Expect(changed).To(BeFalse())
			Expect(resources.updates).To(BeEmpty())
		})

		It("should return update conflicts as not changed", func() {
			resources.updateErr = apierrors.NewConflict(schema.GroupResource{Group: "apps", Resource: "deployments"}, "web", nil)

			changed, err := r.Reconcile(ctx, ref, map[string]string{"team": "a"})
			Expect(apierrors.IsConflict(err)).To(BeTrue())
			Expect(changed).To(BeFalse())
		})
	})
})
