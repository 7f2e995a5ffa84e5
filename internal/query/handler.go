package query

import (
	"errors"

	"github.com/example/payment-orders/internal/infrastructure/store"
	"github.com/example/payment-orders/internal/readmodel"
)

var ErrNotFound = errors.New("read model not found")

// Handler answers queries from the projections. It only ever reads; the saga
// handlers own all writes to the read store.
type Handler struct {
	readStore store.ReadStoreInterface
}

func NewHandler(readStore store.ReadStoreInterface) *Handler {
	return &Handler{readStore: readStore}
}

func (h *Handler) ChargeByID(id string) (readmodel.Charge, error) {
	v, ok := h.readStore.Get(readmodel.CollectionCharges, id)
	if !ok {
		return readmodel.Charge{}, ErrNotFound
	}
	c, ok := v.(readmodel.Charge)
	if !ok {
		return readmodel.Charge{}, ErrNotFound
	}
	return c, nil
}

func (h *Handler) ChargeByExternalKey(applicationKey, externalKey string) (readmodel.Charge, error) {
	matches := h.readStore.GetFiltered(readmodel.CollectionCharges, func(v any) bool {
		c, ok := v.(readmodel.Charge)
		return ok && c.ApplicationKey == applicationKey && c.ExternalKey == externalKey
	})
	if len(matches) == 0 {
		return readmodel.Charge{}, ErrNotFound
	}
	return matches[0].(readmodel.Charge), nil
}

func (h *Handler) ChargesByApplication(applicationKey string) []readmodel.Charge {
	matches := h.readStore.GetFiltered(readmodel.CollectionCharges, func(v any) bool {
		c, ok := v.(readmodel.Charge)
		return ok && c.ApplicationKey == applicationKey
	})
	charges := make([]readmodel.Charge, 0, len(matches))
	for _, m := range matches {
		charges = append(charges, m.(readmodel.Charge))
	}
	return charges
}

func (h *Handler) ClientApplicationByID(id string) (readmodel.ClientApplication, error) {
	v, ok := h.readStore.Get(readmodel.CollectionClientApplications, id)
	if !ok {
		return readmodel.ClientApplication{}, ErrNotFound
	}
	a, ok := v.(readmodel.ClientApplication)
	if !ok {
		return readmodel.ClientApplication{}, ErrNotFound
	}
	return a, nil
}

func (h *Handler) ClientApplicationByExternalKey(externalKey string) (readmodel.ClientApplication, error) {
	matches := h.readStore.GetFiltered(readmodel.CollectionClientApplications, func(v any) bool {
		a, ok := v.(readmodel.ClientApplication)
		return ok && a.ExternalKey == externalKey
	})
	if len(matches) == 0 {
		return readmodel.ClientApplication{}, ErrNotFound
	}
	return matches[0].(readmodel.ClientApplication), nil
}

func (h *Handler) ProductByID(id string) (readmodel.Product, error) {
	v, ok := h.readStore.Get(readmodel.CollectionProducts, id)
	if !ok {
		return readmodel.Product{}, ErrNotFound
	}
	p, ok := v.(readmodel.Product)
	if !ok {
		return readmodel.Product{}, ErrNotFound
	}
	return p, nil
}

func (h *Handler) ProductsByApplication(applicationKey string) []readmodel.Product {
	matches := h.readStore.GetFiltered(readmodel.CollectionProducts, func(v any) bool {
		p, ok := v.(readmodel.Product)
		return ok && p.ApplicationKey == applicationKey
	})
	products := make([]readmodel.Product, 0, len(matches))
	for _, m := range matches {
		products = append(products, m.(readmodel.Product))
	}
	return products
}
