package model

// Коллекции документов. Имена совпадают с существующими данными сайта,
// включая исторические опечатки.
const (
	CollectionBlogs          = "blogs"
	CollectionBlogCategories = "blog_category"
	CollectionLinks          = "footer_url"
	CollectionLocations      = "franchise_loaction"
	CollectionContactLeads   = "enquireOptions"
	CollectionPartnerLeads   = "applications"
	CollectionPages          = "page_master_tb"
	CollectionCategories     = "category_manage"
	CollectionCities         = "city_tb"
	CollectionUsers          = "users"
)

// Счётчики последовательных номеров.
const (
	CounterBlog         = "blogCounter"
	CounterBlogCategory = "categoryCounter"
)
