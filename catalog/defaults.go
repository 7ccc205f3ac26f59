package catalog

import "github.com/liamcoop/claims/claims"

// datePattern matches 2023-10-05, 2023年10月5日 and similar forms
const datePattern = `(\d{4}[-年]\d{1,2}[-月]\d{1,2}[日天]?)`

// amountPattern matches a currency-prefixed or word-prefixed amount like ¥5000.00
const amountPattern = `([¥￥$\p{L}\p{N}_]+\d+(?:\.\d+)?)`

// lineValue captures the remainder of the line
const lineValue = `([^\n\r]+)`

// DefaultSpec returns the built-in tables. The returned value is a fresh copy.
func DefaultSpec() Spec {
	return Spec{
		IdealFieldCount: 5,
		DefaultPolicy:   "health_insurance_basic",
		DocumentTypes: []DocumentTypeSpec{
			{
				Type:     claims.MedicalRecord,
				Keywords: []string{"病历", "诊断", "入院", "出院", "医嘱", "检查", "检验", "病理", "门诊"},
				Fields: []FieldDefinition{
					{Name: "patient_name", Pattern: `患者[：:]\s*` + lineValue, Label: "患者姓名"},
					{Name: "diagnosis", Pattern: `(诊断|初步诊断)[：:]\s*` + lineValue, Label: "诊断结果"},
					{Name: "admission_date", Pattern: `(入院日期|住院日期)[：:]\s*` + datePattern, Label: "入院日期"},
					{Name: "discharge_date", Pattern: `(出院日期)[：:]\s*` + datePattern, Label: "出院日期"},
					{Name: "hospital_name", Pattern: `(医院|医疗机构)[：:]\s*` + lineValue, Label: "医院名称"},
					{Name: "doctor_name", Pattern: `(主治医师|医生)[：:]\s*` + lineValue, Label: "医生姓名"},
				},
			},
			{
				Type:     claims.AccidentReport,
				Keywords: []string{"事故", "现场", "交警", "认定书", "碰撞", "损伤", "报案", "调查"},
				Fields: []FieldDefinition{
					{Name: "accident_date", Pattern: `(事故日期|发生时间)[：:]\s*` + datePattern, Label: "事故日期"},
					{Name: "accident_location", Pattern: `(事故地点|现场位置)[：:]\s*` + lineValue, Label: "事故地点"},
					{Name: "parties_involved", Pattern: `(当事人|涉事人员)[：:]\s*` + lineValue, Label: "涉及人员"},
					{Name: "accident_description", Pattern: `(事故经过|简要描述)[：:]\s*` + lineValue, Label: "事故描述"},
					{Name: "police_station", Pattern: `(交警队|派出所)[：:]\s*` + lineValue, Label: "执法单位"},
				},
			},
			{
				Type:     claims.Invoice,
				Keywords: []string{"发票", "金额", "费用", "收据", "结算", "收费", "凭证"},
				Fields: []FieldDefinition{
					{Name: "invoice_number", Pattern: `(发票号码|发票号)[：:]\s*([A-Z\d]+)`, Label: "发票号码"},
					{Name: "invoice_amount", Pattern: `(金额|合计)[：:]\s*` + amountPattern, Label: "发票金额"},
					{Name: "invoice_date", Pattern: `(开票日期|日期)[：:]\s*` + datePattern, Label: "开票日期"},
					{Name: "provider", Pattern: `(销售方|收款方|供应商)[：:]\s*` + lineValue, Label: "提供商"},
					{Name: "recipient", Pattern: `(购买方|付款方|客户)[：:]\s*` + lineValue, Label: "接收方"},
				},
			},
			{
				Type:     claims.IdentityCard,
				Keywords: []string{"身份证", "姓名", "性别", "出生", "地址", "证件"},
				Fields: []FieldDefinition{
					{Name: "name", Pattern: `姓名[：:]\s*` + lineValue, Label: "姓名"},
					{Name: "id_number", Pattern: `身份证号[：:]\s*(\d{17}[\dXx])`, Label: "身份证号"},
					{Name: "gender", Pattern: `性别[：:]\s*` + lineValue, Label: "性别"},
					{Name: "birth_date", Pattern: `出生[：:]\s*` + datePattern, Label: "出生日期"},
					{Name: "address", Pattern: `住址[：:]\s*` + lineValue, Label: "地址"},
				},
			},
			{
				Type:     claims.BankStatement,
				Keywords: []string{"银行", "流水", "转账", "账户", "存款", "取款", "余额"},
				Fields: []FieldDefinition{
					{Name: "account_number", Pattern: `(账号|卡号)[：:]\s*([\d\s]+)`, Label: "账户号码"},
					{Name: "account_holder", Pattern: `(户名|账户持有人)[：:]\s*` + lineValue, Label: "账户持有人"},
					{Name: "balance", Pattern: `(余额|当前余额)[：:]\s*` + amountPattern, Label: "余额"},
					{Name: "statement_period", Pattern: `(账单期间|对账单期间)[：:]\s*` + lineValue, Label: "账单期间"},
				},
			},
			{
				Type:     claims.InsuranceContract,
				Keywords: []string{"保险", "合同", "条款", "投保", "受益", "保费", "保障"},
				Fields: []FieldDefinition{
					{Name: "policy_number", Pattern: `(保单号|保险单号)[：:]\s*([A-Z\d]+)`, Label: "保单号"},
					{Name: "policy_holder", Pattern: `(投保人)[：:]\s*` + lineValue, Label: "投保人"},
					{Name: "insured_person", Pattern: `(被保险人)[：:]\s*` + lineValue, Label: "被保险人"},
					{Name: "coverage_amount", Pattern: `(保险金额|保额)[：:]\s*` + amountPattern, Label: "保险金额"},
					{Name: "effective_date", Pattern: `(生效日期|保险期间)[：:]\s*` + datePattern, Label: "生效日期"},
				},
			},
		},
		Policies: []claims.PolicyTerms{
			{
				Name:          "health_insurance_basic",
				DisplayName:   "基本医疗保险",
				Coverage:      []string{"住院费用", "手术费用", "药品费用(医保目录内)"},
				Exclusions:    []string{"既往症", "美容手术", "牙科治疗", "生育相关"},
				Limits: map[string]float64{
					claims.LimitAnnual:       100000,
					claims.LimitPerVisit:     30000,
					claims.LimitSelfPayRatio: 0.1,
				},
				WaitingPeriod: 30,
			},
			{
				Name:        "accident_insurance",
				DisplayName: "意外伤害保险",
				Coverage:    []string{"意外身故", "意外伤残", "意外医疗费用"},
				Exclusions:  []string{"自杀", "酒驾", "战争", "高风险运动"},
				Limits: map[string]float64{
					claims.LimitAccidentalDeath:   500000,
					claims.LimitAccidentalMedical: 50000,
				},
				WaitingPeriod: 0,
			},
		},
	}
}
