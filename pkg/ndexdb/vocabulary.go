package ndexdb

// Entity labels. Every NDEx entity is one storage node carrying exactly one of
// these labels.
const (
	LabelNetwork         = "network"
	LabelNamespace       = "namespace"
	LabelBaseTerm        = "baseTerm"
	LabelCitation        = "citation"
	LabelSupport         = "support"
	LabelReifiedEdgeTerm = "reifiedEdgeTerm"
	LabelFunctionTerm    = "functionTerm"
	LabelNode            = "node"
	LabelEdge            = "edge"
	LabelProperty        = "ndexProperty"
	LabelAccount         = "account"
	LabelCloneIntent     = "cloneIntent"
)

// Ownership relationships: network -> owned entity.
const (
	RelNetworkNodes            = "networkNodes"
	RelNetworkEdges            = "networkEdges"
	RelNetworkBaseTerms        = "networkBaseTerms"
	RelNetworkNamespaces       = "networkNamespaces"
	RelNetworkCitations        = "networkCitations"
	RelNetworkSupports         = "networkSupports"
	RelNetworkFunctionTerms    = "networkFunctionTerms"
	RelNetworkReifiedEdgeTerms = "networkReifiedEdgeTerms"
)

// OwnershipRelationships lists every network -> entity relationship type.
var OwnershipRelationships = []string{
	RelNetworkNamespaces,
	RelNetworkBaseTerms,
	RelNetworkCitations,
	RelNetworkSupports,
	RelNetworkReifiedEdgeTerms,
	RelNetworkFunctionTerms,
	RelNetworkNodes,
	RelNetworkEdges,
}

// Content relationships.
const (
	RelBaseTermNS      = "baseTermNS"      // baseTerm -> namespace
	RelSupportCitation = "supportCitation" // support -> citation
	RelRepresents      = "represents"      // node -> term
	RelAlias           = "alias"           // node -> baseTerm
	RelRelateTo        = "relateTo"        // node -> baseTerm
	RelCitations       = "citations"       // node|edge -> citation
	RelSupports        = "supports"        // node|edge -> support
	RelEdgeSubject     = "edgeSubject"     // subject node -> edge
	RelEdgeObject      = "edgeObject"      // edge -> object node
	RelEdgePredicate   = "edgePredicate"   // edge -> baseTerm
	RelReifiedEdge     = "reifiedEdge"     // reifiedEdgeTerm -> edge
	RelFunctionName    = "functionName"    // functionTerm -> baseTerm
	RelFunctionParam   = "functionParam"   // functionTerm -> term, ordered by PropPosition
	RelNdexProps       = "ndexProps"       // any -> ndexProperty
	RelPropPredicate   = "propPredicate"   // ndexProperty -> baseTerm
)

// Permission relationships: account -> network.
const (
	RelAdmin   = "admin"
	RelCanEdit = "canEdit"
	RelCanRead = "canRead"
)

// PermissionRelationships lists the grants copied between network records.
var PermissionRelationships = []string{RelAdmin, RelCanEdit, RelCanRead}

// Network record properties.
const (
	PropUUID              = "UUID"
	PropName              = "name"
	PropDescription       = "description"
	PropVersion           = "version"
	PropVisibility        = "visibility"
	PropNodeCount         = "nodeCount"
	PropEdgeCount         = "edgeCount"
	PropIsComplete        = "isComplete"
	PropIsLocked          = "isLocked"
	PropIsDeleted         = "isDeleted"
	PropCreatedTime       = "createdTime"
	PropModifiedTime      = "modifiedTime"
	PropURI               = "URI"
	PropSourceFormat      = "sourceFormat"
	PropReadOnlyCommitID  = "readOnlyCommitId"
	PropCacheID           = "cacheId"
	PropPresentationProps = "presentationProps"
)

// Entity properties.
const (
	PropPrefix          = "prefix"
	PropNamespaceURI    = "uri"
	PropTitle           = "title"
	PropIdType          = "idType"
	PropIdentifier      = "identifier"
	PropContributors    = "contributors"
	PropText            = "text"
	PropValue           = "value"
	PropDataType        = "dataType"
	PropPredicateString = "predicateString"
	PropPosition        = "position"
	PropAccountName     = "accountName"
)
