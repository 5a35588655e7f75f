package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"moysklad_sync/internal/logger"
	"moysklad_sync/internal/model"
	"moysklad_sync/pkg/moysklad"
)

// syncVariants turns the product into a variable one (in place, the local
// id and mapping stay) and upserts one variation per remote variant, keyed
// by the remote variant id. Characteristic names become global taxonomies.
// The variants of one product are written as a unit; stops are honored
// between products.
func (s *CatalogService) syncVariants(ctx context.Context, parent *model.Product, p *moysklad.Product) error {
	variants, err := s.api.ListVariants(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("list variants: %w", err)
	}
	if len(variants) == 0 {
		return nil
	}

	if !parent.IsVariable() {
		if err := s.products.UpdateFields(ctx, parent.ID, map[string]interface{}{"type": model.ProductTypeVariable}); err != nil {
			return fmt.Errorf("convert to variable: %w", err)
		}
		parent.Type = model.ProductTypeVariable
		logger.Log.Info("[CatalogSync] converted product to variable",
			zap.Int64("product_id", parent.ID), zap.Int("variants", len(variants)))
	}

	existing, err := s.products.ListVariations(ctx, parent.ID)
	if err != nil {
		return err
	}
	byRemote := make(map[string]*model.Product, len(existing))
	for i := range existing {
		if existing[i].RemoteVariantID != "" {
			byRemote[existing[i].RemoteVariantID] = &existing[i]
		}
	}

	taxonomies := make(map[string]*model.AttributeTaxonomy)
	var optionNames []string
	optionValues := make(map[string][]string)

	for _, v := range variants {
		if len(v.Characteristics) == 0 {
			continue
		}

		var attrs []model.ProductAttribute
		for _, ch := range v.Characteristics {
			tax, ok := taxonomies[ch.Name]
			if !ok {
				if tax, err = s.products.EnsureTaxonomy(ctx, ch.Name); err != nil {
					return fmt.Errorf("taxonomy %q: %w", ch.Name, err)
				}
				taxonomies[ch.Name] = tax
				optionNames = append(optionNames, ch.Name)
			}
			if !containsString(optionValues[ch.Name], ch.Value) {
				if _, err := s.products.EnsureTerm(ctx, tax.ID, ch.Value); err != nil {
					return fmt.Errorf("term %q: %w", ch.Value, err)
				}
				optionValues[ch.Name] = append(optionValues[ch.Name], ch.Value)
			}
			attrs = append(attrs, model.ProductAttribute{
				TaxonomyID: tax.ID,
				Name:       ch.Name,
				Value:      ch.Value,
				Position:   len(attrs),
				Visible:    true,
			})
		}

		variation, err := s.upsertVariation(ctx, parent, byRemote[v.ID], v)
		if err != nil {
			logger.Log.Warn("[CatalogSync] variation write failed",
				zap.String("variant_id", v.ID), zap.Error(err))
			continue
		}
		if err := s.products.ReplaceAttributes(ctx, variation.ID, attrs); err != nil {
			return err
		}
	}

	return s.writeVariationSelectors(ctx, parent.ID, optionNames, optionValues, taxonomies)
}

func (s *CatalogService) upsertVariation(ctx context.Context, parent *model.Product, current *model.Product, v moysklad.Variant) (*model.Product, error) {
	price, hasPrice := SelectPrice(v.SalePrices, s.cfg.PriceTypeID)
	if current != nil {
		current.Name = v.Name
		if v.Code != "" {
			current.SKU = v.Code
		}
		if hasPrice {
			current.RegularPrice = price
		}
		current.Attributes, current.Images = nil, nil
		return current, s.products.Update(ctx, current)
	}

	variation := &model.Product{
		ParentID:        parent.ID,
		Type:            model.ProductTypeVariation,
		Status:          model.ProductStatusPublish,
		Name:            v.Name,
		SKU:             v.Code,
		CategoryID:      parent.CategoryID,
		RemoteVariantID: v.ID,
	}
	if hasPrice {
		variation.RegularPrice = price
	}
	return variation, s.products.Create(ctx, variation)
}

// writeVariationSelectors replaces the parent's variation attributes and
// keeps its plain ones.
func (s *CatalogService) writeVariationSelectors(ctx context.Context, parentID int64, names []string,
	values map[string][]string, taxonomies map[string]*model.AttributeTaxonomy) error {
	current, err := s.products.ListAttributes(ctx, parentID)
	if err != nil {
		return err
	}
	var attrs []model.ProductAttribute
	for _, a := range current {
		if !a.ForVariations {
			attrs = append(attrs, a)
		}
	}
	for _, name := range names {
		attrs = append(attrs, model.ProductAttribute{
			TaxonomyID:    taxonomies[name].ID,
			Name:          name,
			Value:         strings.Join(values[name], " | "),
			Position:      len(attrs),
			Visible:       true,
			ForVariations: true,
		})
	}
	return s.products.ReplaceAttributes(ctx, parentID, attrs)
}

// SyncVariant refreshes one variation from its remote variant. When no
// variation is linked yet the parent product is processed again.
func (s *CatalogService) SyncVariant(ctx context.Context, variantID string) (Outcome, error) {
	v, err := s.api.GetVariant(ctx, variantID)
	if err != nil {
		return OutcomeFailed, err
	}
	variation, err := s.products.FindVariationByRemoteID(ctx, variantID)
	if err != nil {
		return OutcomeFailed, err
	}
	if variation == nil {
		productID := v.ProductID()
		if productID == "" {
			return OutcomeSkipped, nil
		}
		parent, err := s.api.GetProduct(ctx, productID)
		if err != nil {
			return OutcomeFailed, err
		}
		return s.ProcessProduct(ctx, parent), nil
	}

	if _, err := s.upsertVariation(ctx, nil, variation, *v); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeUpdated, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
