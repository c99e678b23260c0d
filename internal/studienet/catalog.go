package studienet

import (
	"context"
	"fmt"
	"net/url"

	"studienet-scraper/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_catalog_list_classes   = "catalog.list-classes"
	report_catalog_list_materials = "catalog.list-materials"
)

// ClassEntry is one class the student is enrolled in.
type ClassEntry struct {
	Name string
	Url  string
}

// MaterialsUrl is the url of the page listing the materials of the class at `classUrl`.
func MaterialsUrl(classUrl, subpath string) (string, error) {
	return url.JoinPath(classUrl, subpath)
}

// document opens `link` in a new page and returns its DOM, the page is closed before
// returning since everything needed is in the document.
func (s *Session) document(ctx context.Context, link string) (*goquery.Document, *url.URL, error) {
	if s.closed {
		return nil, nil, fmt.Errorf("studienet: session is torn down")
	}

	page, err := s.browser.OpenPage(ctx, link)
	if err != nil {
		return nil, nil, err
	}
	defer page.Close()

	doc, err := page.Document(ctx)
	if err != nil {
		return nil, nil, err
	}

	base := doc.Url
	if base == nil {
		base = page.Url()
	}
	return doc, base, nil
}

// ListClasses reads the class table of the all classes page, it fails on the
// first row that does not carry a usable anchor.
func (s *Session) ListClasses(ctx context.Context) ([]ClassEntry, error) {
	ctx, span := tracer.Start(ctx, "ListClasses")
	defer span.End()

	fail := func(err error) ([]ClassEntry, error) {
		s.tel.ReportBroken(report_catalog_list_classes, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list classes")
		return nil, err
	}

	doc, base, err := s.document(ctx, s.portal.AllClassesUrl)
	if err != nil {
		return fail(fmt.Errorf("open all classes page: %w", err))
	}

	if doc.Find(s.portal.ClassTableSelector).Length() == 0 {
		return fail(&ExtractionError{
			Page:     s.portal.AllClassesUrl,
			Selector: s.portal.ClassTableSelector,
			Row:      -1,
			Reason:   "class table not found",
		})
	}

	rowSelector := s.portal.ClassTableSelector + " tbody tr"
	rows := doc.Find(rowSelector)

	classes := []ClassEntry{}
	for i := range rows.Nodes {
		row := rows.Eq(i)
		// header rows only have <th> cells
		if row.Find("td").Length() == 0 && row.Find("th").Length() > 0 {
			continue
		}

		rowError := func(reason string) *ExtractionError {
			return &ExtractionError{
				Page:     s.portal.AllClassesUrl,
				Selector: rowSelector,
				Row:      i,
				Reason:   reason,
			}
		}

		anchor := row.Find("a").First()
		if anchor.Length() == 0 {
			return fail(rowError("row has no anchor"))
		}
		a, err := htmlutil.GetAnchor(base, anchor.Nodes[0])
		if err != nil {
			return fail(rowError(err.Error()))
		}
		if a.Name == "" {
			return fail(rowError("anchor has no text"))
		}

		classes = append(classes, ClassEntry{
			Name: a.Name,
			Url:  a.Url.String(),
		})
	}

	span.SetAttributes(attribute.Int("classes", len(classes)))
	s.tel.ReportCount(report_catalog_list_classes, int64(len(classes)))

	return classes, nil
}

// ListMaterials returns the download urls of every material of a class, in group order
// and then row order. A class without any material groups has no materials.
func (s *Session) ListMaterials(ctx context.Context, classUrl string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "ListMaterials")
	defer span.End()
	span.SetAttributes(attribute.String("class_url", classUrl))

	fail := func(err error) ([]string, error) {
		s.tel.ReportBroken(report_catalog_list_materials, err, classUrl)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list materials")
		return nil, err
	}

	link, err := MaterialsUrl(classUrl, s.portal.MaterialsSubpath)
	if err != nil {
		return fail(fmt.Errorf("materials url of %s: %w", classUrl, err))
	}

	doc, base, err := s.document(ctx, link)
	if err != nil {
		return fail(fmt.Errorf("open materials page: %w", err))
	}

	materials := []string{}
	groups := doc.Find(s.portal.MaterialGroupSelector)
	for gi := range groups.Nodes {
		rows := groups.Eq(gi).Find("tr")
		for ri := range rows.Nodes {
			row := rows.Eq(ri)
			rowError := func(reason string) *ExtractionError {
				return &ExtractionError{
					Page:     link,
					Selector: s.portal.MaterialCellSelector,
					Group:    gi,
					Row:      ri,
					Reason:   reason,
				}
			}

			cell := row.Find(s.portal.MaterialCellSelector).First()
			if cell.Length() == 0 {
				return fail(rowError("row has no material cell"))
			}
			anchor := cell.Find("a").First()
			if anchor.Length() == 0 {
				return fail(rowError("material cell has no anchor"))
			}
			a, err := htmlutil.GetAnchor(base, anchor.Nodes[0])
			if err != nil {
				return fail(rowError(err.Error()))
			}

			materials = append(materials, a.Url.String())
		}
	}

	span.SetAttributes(attribute.Int("materials", len(materials)))
	s.tel.ReportCount(report_catalog_list_materials, int64(len(materials)))

	return materials, nil
}
