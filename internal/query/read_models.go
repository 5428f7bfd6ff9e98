package query

// Re-export read models from readmodel package for backward compatibility
import "github.com/example/supplychain-recon/internal/readmodel"

type OrderItemReadModel = readmodel.OrderItemReadModel
type OrderReadModel = readmodel.OrderReadModel
type ShipmentReadModel = readmodel.ShipmentReadModel
type InventoryReadModel = readmodel.InventoryReadModel
type PaymentReadModel = readmodel.PaymentReadModel
type ReturnReadModel = readmodel.ReturnReadModel
