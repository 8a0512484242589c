package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
	"github.com/NadeemAtDure/dhis2-core/lib/dimension"
	"github.com/NadeemAtDure/dhis2-core/lib/itemfilter"
	"github.com/NadeemAtDure/dhis2-core/lib/itemstore"
)

// Pager is the paging envelope of a paged listing.
type Pager struct {
	Page      int `json:"page"`
	PageCount int `json:"pageCount"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

type dataItemsResponse struct {
	Pager     *Pager               `json:"pager,omitempty"`
	DataItems []dimension.DataItem `json:"dataItems"`
}

// handleDataItems serves GET /api/dataItems: validate the filter and
// order expressions, translate them to a parameter bag, and run the
// aggregated query.
func (s *Server) handleDataItems(user requestUser, w http.ResponseWriter, r *http.Request) error {
	query := r.URL.Query()

	filters, err := itemfilter.ParseFilters(query["filter"])
	if err != nil {
		return err
	}
	orders, err := itemfilter.ParseOrder(query["order"])
	if err != nil {
		return err
	}
	if err := itemfilter.CheckCompatibility(orders, filters); err != nil {
		return err
	}

	paging := query.Get("paging") != "false"
	page, pageSize, err := s.parsePaging(query.Get("page"), query.Get("pageSize"))
	if err != nil {
		return err
	}

	params := itemstore.Params{
		itemstore.ParamUserID: user.id,
	}
	if locale := query.Get("locale"); locale != "" {
		params[itemstore.ParamLocale] = locale
	}
	if paging {
		// Fetch up to the end of the requested page; the window is
		// sliced out below.
		params[itemstore.ParamMaxRows] = page * pageSize
	}

	req := itemstore.QueryRequest{Params: params}
	if err := applyFilters(&req, filters); err != nil {
		return err
	}
	applyOrders(params, orders)

	result, err := s.store.Query(r.Context(), req)
	if err != nil {
		return err
	}

	response := dataItemsResponse{DataItems: []dimension.DataItem{}}
	if paging {
		response.Pager = &Pager{
			Page:      page,
			PageSize:  pageSize,
			Total:     result.Total,
			PageCount: (result.Total + pageSize - 1) / pageSize,
		}
		offset := (page - 1) * pageSize
		if offset < len(result.Items) {
			end := offset + pageSize
			if end > len(result.Items) {
				end = len(result.Items)
			}
			response.DataItems = result.Items[offset:end]
		}
	} else {
		response.DataItems = result.Items
	}

	writeJSON(w, http.StatusOK, response)
	return nil
}

func (s *Server) parsePaging(rawPage, rawPageSize string) (int, int, error) {
	page := 1
	if rawPage != "" {
		parsed, err := strconv.Atoi(rawPage)
		if err != nil || parsed < 1 {
			return 0, 0, apierror.NewIllegalQuery(apierror.ErrInvalidParameter,
				fmt.Sprintf("Invalid page number: %q", rawPage))
		}
		page = parsed
	}

	pageSize := s.cfg.Limits.DefaultPageSize
	if rawPageSize != "" {
		parsed, err := strconv.Atoi(rawPageSize)
		if err != nil || parsed < 1 {
			return 0, 0, apierror.NewIllegalQuery(apierror.ErrInvalidParameter,
				fmt.Sprintf("Invalid page size: %q", rawPageSize))
		}
		pageSize = parsed
	}
	if pageSize > s.cfg.Limits.MaxPageSize {
		pageSize = s.cfg.Limits.MaxPageSize
	}

	// The fetch window grows as page*pageSize, so the page number is
	// bounded too; the division also keeps the product from overflowing.
	if page > s.cfg.Limits.MaxQueryRows/pageSize {
		return 0, 0, apierror.NewIllegalQuery(apierror.ErrInvalidParameter,
			fmt.Sprintf("Page %d is out of range", page))
	}

	return page, pageSize, nil
}

// applyFilters translates validated filter expressions into bag entries
// and the requested item type set. Text searches arrive in the bag as
// pre-wrapped ILIKE patterns.
func applyFilters(req *itemstore.QueryRequest, filters []itemfilter.Filter) error {
	params := req.Params

	setPattern := func(key string, f itemfilter.Filter) error {
		if _, taken := params[key]; taken {
			return apierror.NewIllegalQuery(apierror.ErrUnsupportedCombination,
				fmt.Sprintf("Repeated filter on attribute %q is not supported", f.Attribute))
		}
		if f.Operator == itemfilter.OpILike {
			params[key] = itemstore.ILikePattern(f.Value)
		} else {
			params[key] = itemstore.ExactPattern(f.Value)
		}
		return nil
	}

	for _, f := range filters {
		switch f.Attribute {
		case itemfilter.AttrName:
			if err := setPattern(itemstore.ParamName, f); err != nil {
				return err
			}
		case itemfilter.AttrDisplayName:
			if err := setPattern(itemstore.ParamDisplayName, f); err != nil {
				return err
			}
		case itemfilter.AttrShortName:
			if err := setPattern(itemstore.ParamShortName, f); err != nil {
				return err
			}
		case itemfilter.AttrID:
			params[itemstore.ParamUID] = f.Value
		case itemfilter.AttrProgramID:
			params[itemstore.ParamProgramID] = f.Value
		case itemfilter.AttrValueType:
			if !dimension.IsValueType(f.Value) {
				return apierror.NewIllegalQuery(apierror.ErrInvalidParameter,
					fmt.Sprintf("Invalid value type: %q", f.Value))
			}
			var valueTypes []string
			if existing, ok := params[itemstore.ParamValueTypes].([]string); ok {
				valueTypes = existing
			}
			params[itemstore.ParamValueTypes] = append(valueTypes, f.Value)
		case itemfilter.AttrDimensionItemType:
			itemType, ok := dimension.ParseItemType(f.Value)
			if !ok {
				return apierror.NewIllegalQuery(apierror.ErrInvalidParameter,
					fmt.Sprintf("Invalid dimension item type: %q", f.Value))
			}
			if req.ItemTypes == nil {
				req.ItemTypes = map[dimension.ItemType]struct{}{}
			}
			req.ItemTypes[itemType] = struct{}{}
		}
	}

	// A name search and a display-name search resolve against the same
	// projected column and cannot both apply.
	if params.Has(itemstore.ParamName) && params.Has(itemstore.ParamDisplayName) {
		return apierror.NewIllegalQuery(apierror.ErrUnsupportedCombination,
			"Combining filters on name and displayName is not supported")
	}

	return nil
}

func applyOrders(params itemstore.Params, orders []itemfilter.Order) {
	for _, o := range orders {
		switch o.Attribute {
		case itemfilter.AttrName:
			params[itemstore.ParamNameOrder] = string(o.Direction)
		case itemfilter.AttrDisplayName:
			params[itemstore.ParamDisplayNameOrder] = string(o.Direction)
		}
	}
}
