package shopify

const productFields = `
	id
	handle
	title
	description
	productType
	vendor
	status
	tags
	updatedAt
	options { name values }
	variants(first: 100) {
		nodes { id sku price availableForSale inventoryQuantity }
	}
	collections(first: 50) {
		nodes { title }
	}
	featuredImage { url }
`

const productsQuery = `
query Products($first: Int!, $after: String, $query: String) {
	products(first: $first, after: $after, query: $query, sortKey: UPDATED_AT) {
		pageInfo { hasNextPage endCursor }
		nodes {` + productFields + `}
	}
}`

const collectionProductsQuery = `
query CollectionProducts($id: ID!, $first: Int!, $after: String) {
	collection(id: $id) {
		products(first: $first, after: $after) {
			pageInfo { hasNextPage endCursor }
			nodes {` + productFields + `}
		}
	}
}`

const collectionsQuery = `
query Collections($first: Int!, $after: String, $query: String) {
	collections(first: $first, after: $after, query: $query) {
		pageInfo { hasNextPage endCursor }
		nodes {
			id
			handle
			title
			description
			productsCount { count }
			updatedAt
		}
	}
}`

const ordersQuery = `
query Orders($first: Int!, $after: String, $query: String) {
	orders(first: $first, after: $after, query: $query, sortKey: UPDATED_AT) {
		pageInfo { hasNextPage endCursor }
		nodes {
			id
			name
			email
			displayFinancialStatus
			displayFulfillmentStatus
			currencyCode
			totalPriceSet { shopMoney { amount } }
			subtotalPriceSet { shopMoney { amount } }
			totalTaxSet { shopMoney { amount } }
			processedAt
			createdAt
			updatedAt
			lineItems(first: 100) {
				nodes {
					sku
					title
					quantity
					originalUnitPriceSet { shopMoney { amount } }
				}
			}
		}
	}
}`
