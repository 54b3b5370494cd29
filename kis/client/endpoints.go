package client

const (
	PathToken   = "/oauth2/tokenP"
	PathHashKey = "/uapi/hashkey"

	// DefaultItemsKey 分页时默认的数组字段
	DefaultItemsKey = "output1"

	// DefaultMaxAttempts 会话过期时最多尝试次数（含首次）
	DefaultMaxAttempts = 2

	contentTypeJSON  = "application/json; charset=utf-8"
	custTypePersonal = "P"
	grantType        = "client_credentials"
)

// 请求/响应头
const (
	headerContentType   = "content-type"
	headerAuthorization = "authorization"
	headerAppKey        = "appkey"
	headerAppSecret     = "appsecret"
	headerTrID          = "tr_id"
	headerCustType      = "custtype"
	headerTrCont        = "tr_cont"
	headerHashKey       = "hashkey"
)
