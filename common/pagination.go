package common

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Page describes one page of a paginated listing plus the links to its
// neighbours, in the {count, next, previous, ...} response shape.
type Page struct {
	Number   int
	Size     int
	Count    int64
	Next     *string
	Previous *string
}

func (p *Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Paginate reads the page query param and computes offsets and neighbour
// links for a listing of count rows. A page outside the valid range is
// reported as not found.
func Paginate(c *gin.Context, size int, count int64) (*Page, *Err) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, NotFound("Invalid page.")
		}
		page = n
	}

	numPages := int((count + int64(size) - 1) / int64(size))
	if numPages < 1 {
		numPages = 1
	}
	if page > numPages {
		return nil, NotFound("Invalid page.")
	}

	p := &Page{Number: page, Size: size, Count: count}
	if page < numPages {
		p.Next = pageLink(c, page+1)
	}
	if page > 1 {
		p.Previous = pageLink(c, page-1)
	}
	return p, nil
}

func pageLink(c *gin.Context, page int) *string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}

	query := c.Request.URL.Query()
	if page == 1 {
		query.Del("page")
	} else {
		query.Set("page", strconv.Itoa(page))
	}

	link := fmt.Sprintf("%s://%s%s", scheme, c.Request.Host, c.Request.URL.Path)
	if encoded := query.Encode(); encoded != "" {
		link += "?" + encoded
	}
	return &link
}
